package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/davecgh/go-spew/spew"
	"github.com/dustin/go-humanize"
	"github.com/kjk/regionstore/image"
	"github.com/kjk/regionstore/log"
	"github.com/kjk/regionstore/region"
	"github.com/kjk/regionstore/rng"
	"github.com/kjk/regionstore/store"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"
)

var (
	initCmd = &cobra.Command{
		Use:   "init [image]",
		Short: "Create an empty storage image",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := imagePath()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				path = args[0]
			}
			size, _ := cmd.Flags().GetInt("size")
			force, _ := cmd.Flags().GetBool("force")
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("'%s' already exists, use --force to overwrite", path)
			}
			if _, err = image.Create(path, size); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created '%s' (%d bytes)\n", path, size)
			return nil
		},
	}

	locateCmd = &cobra.Command{
		Use:   "locate [dumpdir]",
		Short: "Find the storage region in a device memory dump",
		Long: `Find the storage region in a device memory dump.

dumpdir holds one file per memory segment named after its start
address in hex, e.g. 90010000.bin or 24000000.bin.zst`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mem, err := image.LoadDump(args[0])
			if err != nil {
				return err
			}
			loc := region.NewLocator(mem)
			r, err := loc.Region()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "family:  %s\n", loc.Family.Name)
			fmt.Fprintf(w, "address: 0x%08x\n", r.Base)
			fmt.Fprintf(w, "size:    %d\n", r.Len())
			if err = store.Validate(r); err != nil {
				fmt.Fprintf(w, "storage: %s\n", err)
			}
			out, _ := cmd.Flags().GetString("extract")
			if out == "" {
				return nil
			}
			if err = image.Save(out, r.Data); err != nil {
				return err
			}
			fmt.Fprintf(w, "saved region to '%s'\n", out)
			return nil
		},
	}

	lsCmd = &cobra.Command{
		Use:   "ls",
		Short: "List records in storage order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, err := openStore()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for rec, err := range st.Records() {
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%6d %6d  %s\n", rec.Offset, rec.ContentLen, rec.Name)
			}
			return nil
		},
	}

	catCmd = &cobra.Command{
		Use:   "cat [name]",
		Short: "Print content of a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, err := openStore()
			if err != nil {
				return err
			}
			d, err := st.ReadRaw(args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if hex, _ := cmd.Flags().GetBool("hex"); hex {
				_, err = io.WriteString(w, spew.Sdump(d))
				return err
			}
			_, err = w.Write(d)
			return err
		},
	}

	putCmd = &cobra.Command{
		Use:   "put [name] [file]",
		Short: "Add a record with content of file (- for stdin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, src := args[0], args[1]
			var d []byte
			var err error
			if src == "-" {
				d, err = io.ReadAll(cmd.InOrStdin())
			} else {
				d, err = os.ReadFile(src)
			}
			if err != nil {
				return err
			}
			f, st, err := openStore()
			if err != nil {
				return err
			}
			if text, _ := cmd.Flags().GetBool("text"); text {
				if d, err = store.EncodeText(string(d)); err != nil {
					return err
				}
			}
			if replace, _ := cmd.Flags().GetBool("replace"); replace {
				err = st.Replace(name, d)
			} else {
				err = st.WriteRaw(name, d)
			}
			if err != nil {
				return err
			}
			return f.Flush()
		},
	}

	rmCmd = &cobra.Command{
		Use:   "rm [name]",
		Short: "Erase the first record with a given name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, st, err := openStore()
			if err != nil {
				return err
			}
			if err = st.Erase(args[0]); err != nil {
				return err
			}
			return f.Flush()
		},
	}

	existsCmd = &cobra.Command{
		Use:   "exists [name]",
		Short: "Print true if a record exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, err := openStore()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strconv.FormatBool(st.Exists(args[0])))
			return nil
		},
	}

	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show space usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, err := openStore()
			if err != nil {
				return err
			}
			stats, err := st.Stats()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				d, err := json.Marshal(stats)
				if err != nil {
					return err
				}
				_, err = w.Write(pretty.Pretty(d))
				return err
			}
			fmt.Fprintf(w, "size:    %d (%s)\n", stats.Size, humanize.IBytes(uint64(stats.Size)))
			fmt.Fprintf(w, "used:    %d (%s)\n", stats.Used, humanize.IBytes(uint64(stats.Used)))
			fmt.Fprintf(w, "free:    %d (%s)\n", stats.Free, humanize.IBytes(uint64(stats.Free)))
			fmt.Fprintf(w, "records: %d\n", stats.Records)
			return nil
		},
	}

	diffCmd = &cobra.Command{
		Use:   "diff [image-a] [image-b]",
		Short: "Show differences between records of two images",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := diffImages(args[0], args[1])
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), s)
			return err
		},
	}

	fillCmd = &cobra.Command{
		Use:   "fill",
		Short: "Add records with random content, for testing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			count, _ := cmd.Flags().GetInt("count")
			seed, _ := cmd.Flags().GetUint32("seed")
			maxSize, _ := cmd.Flags().GetInt("max-size")
			if seed == 0 {
				seed = uint32(time.Now().UnixNano())
			}
			f, st, err := openStore()
			if err != nil {
				return err
			}
			n, err := fill(st, rng.New(seed, nil), count, maxSize)
			fmt.Fprintf(cmd.OutOrStdout(), "added %d records (seed %d)\n", n, seed)
			if err != nil {
				return err
			}
			return f.Flush()
		},
	}
)

func addStoreCommands(root *cobra.Command) {
	initCmd.Flags().Int("size", 16*1024, wrapString("size of the region in bytes"))
	initCmd.Flags().Bool("force", false, wrapString("overwrite existing image"))
	locateCmd.Flags().String("extract", "", wrapString("save the located region to this image"))
	catCmd.Flags().Bool("hex", false, wrapString("hex dump instead of raw bytes"))
	putCmd.Flags().Bool("text", false, wrapString("store as text: validated and zero-terminated"))
	putCmd.Flags().Bool("replace", false, wrapString("erase the first record with the same name first"))
	statsCmd.Flags().Bool("json", false, wrapString("print as json"))
	fillCmd.Flags().Int("count", 10, wrapString("number of records to add; stops early when storage is full"))
	fillCmd.Flags().Uint32("seed", 0, wrapString("random seed, 0 picks one based on time"))
	fillCmd.Flags().Int("max-size", 64, wrapString("maximum content size"))

	root.AddCommand(initCmd, locateCmd, lsCmd, catCmd, putCmd, rmCmd, existsCmd, statsCmd, diffCmd, fillCmd)
}

// fill adds up to count records named fill-NNNN with random content.
// Running out of space isn't an error.
func fill(st *store.Store, g *rng.Xorshift32, count int, maxSize int) (int, error) {
	maxSize = max(maxSize, 0)
	for i := range count {
		d := make([]byte, g.Intn(maxSize+1))
		g.Bytes(d)
		name := fmt.Sprintf("fill-%04d", i)
		err := st.WriteRaw(name, d)
		if errors.Is(err, store.ErrInsufficientSpace) {
			log.Verbosef("storage full after %d records\n", i)
			return i, nil
		}
		if err != nil {
			return i, err
		}
	}
	return count, nil
}

// recordLines renders records one per line so that images can be diffed.
// Text content is shown quoted, binary content as hex.
func recordLines(st *store.Store) ([]string, error) {
	var res []string
	for rec, err := range st.Records() {
		if err != nil {
			return nil, err
		}
		d, err := st.Content(rec)
		if err != nil {
			return nil, err
		}
		content := fmt.Sprintf("%x", d)
		if s, err := store.DecodeText(d); err == nil {
			content = strconv.Quote(s)
		} else if utf8.Valid(d) {
			content = strconv.Quote(string(d))
		}
		res = append(res, fmt.Sprintf("%s %d %s\n", rec.Name, rec.ContentLen, content))
	}
	return res, nil
}

func diffImages(pathA, pathB string) (string, error) {
	var lines [2][]string
	for i, path := range []string{pathA, pathB} {
		f, err := image.Open(path)
		if err != nil {
			return "", err
		}
		lines[i], err = recordLines(store.New(f))
		if err != nil {
			return "", fmt.Errorf("%s: %w", path, err)
		}
	}
	diff := difflib.UnifiedDiff{
		A:        lines[0],
		B:        lines[1],
		FromFile: pathA,
		ToFile:   pathB,
		Context:  3,
	}
	return difflib.GetUnifiedDiffString(diff)
}
