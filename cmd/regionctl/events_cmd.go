package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kjk/regionstore/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var eventsCmd = &cobra.Command{
	Use:   "events [file]",
	Short: "Print store changes from an events log",
	Long: `Print store changes from an events log.

Without file, reads today's events log in --log-dir.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var path string
		if len(args) == 1 {
			path = args[0]
		} else {
			dir := viper.GetString("log-dir")
			if dir == "" {
				return errors.New("need --log-dir or a file")
			}
			path = log.DailyPath(filepath.Join(dir, "events"), time.Now())
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		events, err := log.ReadEvents(f)
		w := cmd.OutOrStdout()
		for _, e := range events {
			data := strings.Join(strings.Fields(string(e.Data)), " ")
			fmt.Fprintf(w, "%s %s %s\n", e.Time.Format(time.RFC3339), e.Name, data)
		}
		if err != nil {
			return fmt.Errorf("'%s': %w", path, err)
		}
		return nil
	},
}
