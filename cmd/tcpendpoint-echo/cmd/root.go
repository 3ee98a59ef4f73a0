package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const Version = "0.1.0"

var (
	logger = logrus.New()

	RootCmd = &cobra.Command{
		Use:   "tcpendpoint-echo",
		Short: "reference server for the tcpendpoint POSIX socket endpoint",
		Long: fmt.Sprintf(`tcpendpoint-echo (v%s)

Accepts TCP connections and echoes back every byte read, driving the
read/write/zero-copy/error-queue paths of a real EndpointCore against a
real kernel socket.`, Version),
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("tcpendpoint-echo v%s\n", Version)
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.AddCommand(serveCmd)
	RootCmd.AddCommand(versionCmd)

	RootCmd.PersistentFlags().String("config", "", "path to a YAML config file or directory")
	RootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func initConfig() {
	viper.SetEnvPrefix("tcpendpoint_echo")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	_ = viper.BindPFlags(RootCmd.PersistentFlags())

	level, err := logrus.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// Execute runs the root command; called once from main.main.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
