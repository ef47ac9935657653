package main

import (
	"context"
	"fmt"

	"github.com/kjk/regionstore/backup"
	"github.com/kjk/regionstore/image"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	backupCmd = &cobra.Command{
		Use:   "backup",
		Short: "Keep snapshots of the image in an S3-compatible bucket",
		Long: `Keep snapshots of the image in an S3-compatible bucket.

Credentials are usually set in .env as REGIONCTL_BACKUP_ACCESS,
REGIONCTL_BACKUP_SECRET, REGIONCTL_BACKUP_BUCKET and
REGIONCTL_BACKUP_ENDPOINT.`,
	}

	backupPushCmd = &cobra.Command{
		Use:   "push",
		Short: "Upload a snapshot of the image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			path, err := imagePath()
			if err != nil {
				return err
			}
			d, err := image.Load(path)
			if err != nil {
				return err
			}
			c, err := newBackupClient(ctx)
			if err != nil {
				return err
			}
			key, err := c.Push(ctx, d)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "uploaded '%s' as '%s'\n", path, key)
			return nil
		},
	}

	backupLsCmd = &cobra.Command{
		Use:   "ls",
		Short: "List snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			c, err := newBackupClient(ctx)
			if err != nil {
				return err
			}
			snapshots, err := c.List(ctx)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, s := range snapshots {
				fmt.Fprintf(w, "%s %8d  %s\n", s.Created.Format("2006-01-02 15:04:05"), s.Size, s.Key)
			}
			return nil
		},
	}

	backupPullCmd = &cobra.Command{
		Use:   "pull [key]",
		Short: "Download a snapshot to the image, latest if key is not given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			path, err := imagePath()
			if err != nil {
				return err
			}
			c, err := newBackupClient(ctx)
			if err != nil {
				return err
			}
			var key string
			if len(args) == 1 {
				key = args[0]
			} else {
				snapshots, err := c.List(ctx)
				if err != nil {
					return err
				}
				if len(snapshots) == 0 {
					return fmt.Errorf("no snapshots under '%s'", c.Prefix)
				}
				key = snapshots[0].Key
			}
			d, err := c.Pull(ctx, key)
			if err != nil {
				return err
			}
			if err = image.Save(path, d); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "downloaded '%s' to '%s'\n", key, path)
			return nil
		},
	}

	backupRmCmd = &cobra.Command{
		Use:   "rm [key]",
		Short: "Delete a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			c, err := newBackupClient(ctx)
			if err != nil {
				return err
			}
			return c.Remove(ctx, args[0])
		},
	}
)

func init() {
	fs := backupCmd.PersistentFlags()
	fs.String("backup-access", "", wrapString("S3 access key"))
	fs.String("backup-secret", "", wrapString("S3 secret key"))
	fs.String("backup-bucket", "", wrapString("bucket name"))
	fs.String("backup-endpoint", "", wrapString("S3 endpoint, e.g. s3.eu-central-1.amazonaws.com"))
	fs.String("backup-region", "", wrapString("bucket region"))
	fs.String("backup-prefix", "regionstore", wrapString("snapshots are stored under this prefix"))
	fs.Bool("backup-insecure", false, wrapString("use http instead of https, e.g. for local minio"))

	backupCmd.AddCommand(backupPushCmd, backupLsCmd, backupPullCmd, backupRmCmd)
}

func backupConfig() *backup.Config {
	return &backup.Config{
		Access:   viper.GetString("backup-access"),
		Secret:   viper.GetString("backup-secret"),
		Bucket:   viper.GetString("backup-bucket"),
		Endpoint: viper.GetString("backup-endpoint"),
		Region:   viper.GetString("backup-region"),
		Prefix:   viper.GetString("backup-prefix"),
		Insecure: viper.GetBool("backup-insecure"),
	}
}

func newBackupClient(ctx context.Context) (*backup.Client, error) {
	return backup.New(ctx, backupConfig())
}
