package main

import (
	"crypto/md5"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/iosxe-tools/upgrademgr/internal/store"
)

func newImagesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "images",
		Short: "Manage the firmware image repository",
	}
	cmd.AddCommand(newImagesAddCmd(), newImagesListCmd(), newImagesRemoveCmd())
	return cmd
}

func newImagesAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <path>...",
		Short: "Register image files, recording size and MD5 digest",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			for _, path := range args {
				img, err := describeImage(path)
				if err != nil {
					return err
				}
				if err := a.Store.PutImage(*img); err != nil {
					return err
				}
				fmt.Printf("%s\t%d bytes\tmd5 %s\n", img.Filename, img.SizeBytes, img.MD5)
			}
			return nil
		},
	}
}

func describeImage(path string) (*store.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open image %s failed", path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "stat image %s failed", path)
	}
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, errors.Wrapf(err, "hash image %s failed", path)
	}
	return &store.Image{
		Filename:  filepath.Base(path),
		MD5:       fmt.Sprintf("%x", h.Sum(nil)),
		Path:      path,
		SizeBytes: info.Size(),
	}, nil
}

func newImagesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List repository images",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			images, err := a.Store.ListImages()
			if err != nil {
				return err
			}
			for _, img := range images {
				fmt.Printf("%s\t%d bytes\tmd5 %s\n", img.Filename, img.SizeBytes, img.MD5)
			}
			return nil
		},
	}
}

func newImagesRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <filename>",
		Short: "Remove an image record from the repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Store.DeleteImage(args[0])
		},
	}
}
