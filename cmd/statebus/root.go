package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/adrg/xdg"
	"github.com/spf13/cobra"

	"github.com/dshills/statebus"
	"github.com/dshills/statebus/storage"
	"github.com/dshills/statebus/storage/sqlitestore"
)

type rootFlags struct {
	store  string
	sqlite string
	codec  string
}

// open resolves the store the command operates on. --sqlite wins over
// --store; with neither, the default persistent store is used.
func (f *rootFlags) open() (storage.Store, error) {
	if f.sqlite != "" {
		return sqlitestore.Open(f.sqlite)
	}
	path := f.store
	if path == "" {
		path = filepath.Join(xdg.DataHome, "statebus", "channels.json")
	}
	return storage.OpenFile(path)
}

func (f *rootFlags) newCodec() (storage.Codec, error) {
	switch f.codec {
	case "", "json":
		return storage.JSONCodec{}, nil
	case "msgpack":
		return storage.MsgpackCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q (want json or msgpack)", f.codec)
	}
}

// newBus builds a bus backed by the resolved store, so channel values
// round-trip through the configured codec. The caller closes the
// store; the bus never owns it.
func (f *rootFlags) newBus(store storage.Store) (*statebus.Bus, error) {
	codec, err := f.newCodec()
	if err != nil {
		return nil, err
	}
	return statebus.New(
		statebus.WithPersistentStore(store),
		statebus.WithCodec(codec),
	), nil
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "statebus",
		Short: "Inspect and edit channel storage",
		Long: `statebus works with the storage behind session and persistent
channels: list the stored keys, read and publish channel values,
watch a store for changes made by other processes, and run an
interactive demo dashboard.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&flags.store, "store", "",
		"path to a JSON document store (default: the persistent store)")
	cmd.PersistentFlags().StringVar(&flags.sqlite, "sqlite", "",
		"path to a SQLite store (overrides --store)")
	cmd.PersistentFlags().StringVar(&flags.codec, "codec", "json",
		"value codec for get and set (json or msgpack)")

	cmd.AddCommand(
		newNamesCmd(flags),
		newGetCmd(flags),
		newSetCmd(flags),
		newClearCmd(flags),
		newWatchCmd(flags),
		newDemoCmd(),
		newVersionCmd(),
	)
	return cmd
}

func newNamesCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "names",
		Short: "List all stored keys",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := flags.open()
			if err != nil {
				return err
			}
			defer store.Close()

			keys, err := store.Keys()
			if err != nil {
				return fmt.Errorf("listing keys: %w", err)
			}
			sort.Strings(keys)
			for _, key := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), key)
			}
			return nil
		},
	}
}

func newGetCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get <channel>",
		Short: "Print a channel's persisted value as JSON",
		Long: `Print a channel's persisted value as JSON. The value is
resolved the way a program would see it: decoded through the
configured codec from the store entry for the channel.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := flags.open()
			if err != nil {
				return err
			}
			defer store.Close()

			bus, err := flags.newBus(store)
			if err != nil {
				return err
			}
			defer bus.Close()

			ch, err := bus.Channel(args[0], statebus.WithMode(storage.ModePersistent))
			if err != nil {
				return err
			}
			value, ok := ch.Value()
			if !ok {
				return fmt.Errorf("no value for channel %q", args[0])
			}
			out, err := json.Marshal(value)
			if err != nil {
				return fmt.Errorf("encoding value: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

func newSetCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "set <channel> <json>",
		Short: "Publish a JSON value to a channel backed by the store",
		Long: `Publish a JSON value to a channel backed by the store. The
value is decoded from the JSON argument, published through a
persistent-mode channel, and written to the store with the
configured codec.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var value any
			if err := json.Unmarshal([]byte(args[1]), &value); err != nil {
				return fmt.Errorf("parsing value: %w", err)
			}

			store, err := flags.open()
			if err != nil {
				return err
			}
			defer store.Close()

			bus, err := flags.newBus(store)
			if err != nil {
				return err
			}
			defer bus.Close()

			ch, err := bus.Channel(args[0], statebus.WithMode(storage.ModePersistent))
			if err != nil {
				return err
			}
			return ch.Publish(value)
		},
	}
}

func newClearCmd(flags *rootFlags) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "clear [channel]",
		Short: "Clear a channel's stored value, or every entry with --all",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := flags.open()
			if err != nil {
				return err
			}
			defer store.Close()

			if all {
				keys, err := store.Keys()
				if err != nil {
					return fmt.Errorf("listing keys: %w", err)
				}
				for _, key := range keys {
					if err := store.Delete(key); err != nil {
						return fmt.Errorf("deleting %q: %w", key, err)
					}
				}
				return nil
			}

			if len(args) != 1 {
				return fmt.Errorf("a channel name is required without --all")
			}

			bus, err := flags.newBus(store)
			if err != nil {
				return err
			}
			defer bus.Close()

			if _, err := bus.Channel(args[0], statebus.WithMode(storage.ModePersistent)); err != nil {
				return err
			}
			bus.Clear(args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "remove every stored entry from the store")
	return cmd
}

func newWatchCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print storage changes made by other processes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := flags.open()
			if err != nil {
				return err
			}
			defer store.Close()

			watcher, ok := store.(storage.Watcher)
			if !ok {
				return fmt.Errorf("this store does not support watching")
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			err = watcher.Watch(ctx, func(key string, data []byte, present bool) {
				if !present {
					fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", key)
					return
				}
				fmt.Fprintf(cmd.OutOrStdout(), "changed %s = %s\n", key, data)
			})
			if err != nil {
				return fmt.Errorf("watching store: %w", err)
			}

			<-ctx.Done()
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "statebus %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
