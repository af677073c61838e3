package config

import (
	"github.com/spf13/pflag"
)

type CliConfig struct {
	ConfigFile    string
	Debug         bool
	ListenAddress string
	Help          bool
}

// ParseArgs parses the command line (without the program name).
func ParseArgs(args []string) (*CliConfig, *pflag.FlagSet, error) {
	cli := &CliConfig{}
	fs := pflag.NewFlagSet("prompt-relay", pflag.ContinueOnError)
	fs.StringVarP(&cli.ConfigFile, "config", "c", "", "Path to the config file")
	fs.BoolVarP(&cli.Debug, "debug", "d", false, "Enable debug mode")
	fs.StringVarP(&cli.ListenAddress, "listen", "l", "", "Address to listen on (overrides listen_address)")
	fs.BoolVarP(&cli.Help, "help", "h", false, "Print usage and exit")
	if err := fs.Parse(args); err != nil {
		return nil, fs, err
	}
	return cli, fs, nil
}
