package main

import (
	"fmt"

	"github.com/kjk/regionstore/remote"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	remoteCmd = &cobra.Command{
		Use:   "remote",
		Short: "Copy the image to and from a host over ssh",
	}

	remotePullCmd = &cobra.Command{
		Use:   "pull [remote-path]",
		Short: "Download remote-path to the image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := imagePath()
			if err != nil {
				return err
			}
			c, err := remote.Dial(remoteConfig())
			if err != nil {
				return err
			}
			defer c.Close()
			if err = c.Pull(args[0], path); err != nil {
				return err
			}
			// make sure we got a usable image
			f, st, err := openStore()
			if err != nil {
				return err
			}
			stats, err := st.Stats()
			if err != nil {
				return fmt.Errorf("downloaded '%s' but it's not valid: %w", f.Path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "downloaded '%s', %d records\n", args[0], stats.Records)
			return nil
		},
	}

	remotePushCmd = &cobra.Command{
		Use:   "push [remote-path]",
		Short: "Upload the image to remote-path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := imagePath()
			if err != nil {
				return err
			}
			// refuse to push a broken image
			if _, st, err := openStore(); err != nil {
				return err
			} else if _, err = st.Stats(); err != nil {
				return fmt.Errorf("'%s': %w", path, err)
			}
			c, err := remote.Dial(remoteConfig())
			if err != nil {
				return err
			}
			defer c.Close()
			if err = c.Push(path, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "uploaded '%s' to '%s'\n", path, args[0])
			return nil
		},
	}
)

func init() {
	fs := remoteCmd.PersistentFlags()
	fs.String("remote-user", "root", wrapString("ssh user"))
	fs.String("remote-host", "", wrapString("ssh host"))
	fs.Uint("remote-port", 22, wrapString("ssh port"))
	fs.String("remote-key", "~/.ssh/id_ed25519", wrapString("private key, host key is checked against ~/.ssh/known_hosts"))

	remoteCmd.AddCommand(remotePullCmd, remotePushCmd)
}

func remoteConfig() *remote.Config {
	return &remote.Config{
		User:    viper.GetString("remote-user"),
		Host:    viper.GetString("remote-host"),
		Port:    viper.GetUint("remote-port"),
		KeyPath: viper.GetString("remote-key"),
	}
}
