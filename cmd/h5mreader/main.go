// Command h5mreader is the reader front-end named in §6: point and range
// reads against an already-created store.
package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	h5mobaku "github.com/ryuzot/h5mobaku"
	"github.com/ryuzot/h5mobaku/internal/logger"
	"github.com/ryuzot/h5mobaku/internal/matrix"
)

var (
	filePath string
	mesh     uint32
	datetime string
	start    string
	end      string
	raw      bool
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "h5mreader",
		Short: "Read point and range values from a population-by-mesh store",
	}
	cmd.AddCommand(pointCmd(), rangeCmd())
	return cmd
}

func resolveFilePath() (string, error) {
	p := h5mobaku.ResolveStorePath(filePath, ".env")
	if p == "" {
		return "", fmt.Errorf("h5mreader: no store path given (use --file, HDF5_FILE_PATH, or .env)")
	}
	return p, nil
}

func pointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "point",
		Short: "Read a single cell at one datetime",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveFilePath()
			if err != nil {
				return err
			}
			log := logger.New(os.Stderr)
			s, err := h5mobaku.Open(path, matrix.CacheOptions{}, log)
			if err != nil {
				return err
			}
			defer s.Close()

			v, err := s.ReadCellAt(datetime, mesh)
			if err != nil {
				return err
			}
			fmt.Println(v)
			return nil
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "store file path")
	cmd.Flags().Uint32Var(&mesh, "mesh", 0, "mesh key")
	cmd.Flags().StringVar(&datetime, "datetime", "", "datetime, format 2006-01-02 15:04:05")
	cmd.MarkFlagRequired("mesh")
	cmd.MarkFlagRequired("datetime")
	return cmd
}

func rangeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "range",
		Short: "Read a row of cells across a datetime range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveFilePath()
			if err != nil {
				return err
			}
			log := logger.New(os.Stderr)
			s, err := h5mobaku.Open(path, matrix.CacheOptions{}, log)
			if err != nil {
				return err
			}
			defer s.Close()

			vals, err := s.ReadRangeAt(start, end, mesh)
			if err != nil {
				return err
			}

			if raw {
				return writeRaw(os.Stdout, vals)
			}
			for _, v := range vals {
				fmt.Println(v)
			}
			log.Info("range read complete", zap.String("cells", humanize.Comma(int64(len(vals)))))
			return nil
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "store file path")
	cmd.Flags().Uint32Var(&mesh, "mesh", 0, "mesh key")
	cmd.Flags().StringVar(&start, "start", "", "range start datetime")
	cmd.Flags().StringVar(&end, "end", "", "range end datetime")
	cmd.Flags().BoolVar(&raw, "raw", false, "emit little-endian uint32 per hour on stdout, no diagnostics")
	cmd.MarkFlagRequired("mesh")
	cmd.MarkFlagRequired("start")
	cmd.MarkFlagRequired("end")
	return cmd
}

// writeRaw emits one little-endian uint32 per hour, matching §6's "raw
// emits little-endian uint32 per hour" contract exactly: no diagnostics on
// stdout in this mode.
func writeRaw(w *os.File, vals []int32) error {
	buf := make([]byte, 4)
	for _, v := range vals {
		u := uint32(v)
		buf[0] = byte(u)
		buf[1] = byte(u >> 8)
		buf[2] = byte(u >> 16)
		buf[3] = byte(u >> 24)
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}
