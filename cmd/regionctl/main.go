package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kjk/regionstore/image"
	"github.com/kjk/regionstore/log"
	"github.com/kjk/regionstore/store"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	Version = "0.3.0"

	// wrapAt is the number of characters to wrap the help text at
	wrapAt = 50
)

var (
	rootCmd = &cobra.Command{
		Use:   "regionctl",
		Short: "inspect and edit named-record storage images",
		Long: fmt.Sprintf(`regionctl (v%s)

Reads and writes records in storage region images: a 4 byte magic
header followed by [u16 size][name\0][content] records. Images can be
plain or compressed (.gz, .zst, .br), pulled from a device dump, a
remote host or an S3 bucket.`, Version),
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of regionctl",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "regionctl v%s\n", Version)
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("image", "storage.img", wrapString("path of the storage image, compression is picked from the extension"))
	rootCmd.PersistentFlags().Bool("verbose", false, wrapString("log more"))
	rootCmd.PersistentFlags().String("log-dir", "", wrapString("if set, logs, errors and events are also written to daily files in this directory"))

	rootCmd.AddCommand(versionCmd)
	addStoreCommands(rootCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(remoteCmd)
	rootCmd.AddCommand(eventsCmd)
}

// initConfig loads .env files and maps REGIONCTL_* env variables to flags
func initConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("regionctl")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func setup(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	log.Verbose = viper.GetBool("verbose")
	log.Out = cmd.OutOrStdout()
	log.Init(&log.Config{Dir: viper.GetString("log-dir")})
	return nil
}

// wrapString wraps text at wrapAt characters
func wrapString(text string) string {
	var lines []string
	var line strings.Builder
	for _, word := range strings.Fields(text) {
		if line.Len() > 0 && line.Len()+1+len(word) > wrapAt {
			lines = append(lines, line.String())
			line.Reset()
		}
		if line.Len() > 0 {
			line.WriteString(" ")
		}
		line.WriteString(word)
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}

func imagePath() (string, error) {
	path := viper.GetString("image")
	if path == "" {
		return "", errors.New("need --image")
	}
	return path, nil
}

func logChange(op store.Op, name string, size int) {
	log.Event("store."+op.String(), "name", name, "size", size)
}

// openStore opens the image given by --image
func openStore() (*image.File, *store.Store, error) {
	path, err := imagePath()
	if err != nil {
		return nil, nil, err
	}
	f, err := image.Open(path)
	if err != nil {
		return nil, nil, err
	}
	st := store.New(f)
	st.OnChange = logChange
	log.Verbosef("opened '%s', %d bytes\n", path, len(f.Data))
	return f, st, nil
}

func main() {
	err := rootCmd.Execute()
	log.Close()
	if err != nil {
		os.Exit(1)
	}
}
