package cmd

import (
	"context"
	"errors"
	"net"

	"github.com/foomo/keel/log"
	"github.com/foomo/posstore/pkg/handler"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func NewSocketCommand() *cobra.Command {
	v := newViper()
	cmd := &cobra.Command{
		Use:   "socket",
		Short: "Start socket server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l := log.Logger()

			s, err := newStorage(cmd.Context(), v, l)
			if err != nil {
				return err
			}
			defer func() {
				if err := s.Close(context.Background()); err != nil {
					l.Warn("failed to close storage", zap.Error(err))
				}
			}()

			// create socket server
			handle := handler.NewSocket(l, s)

			// listen on socket
			ln, err := net.Listen("tcp", addressFlag(v))
			if err != nil {
				return err
			}

			g, gCtx := errgroup.WithContext(cmd.Context())

			// start storage
			up := make(chan bool, 1)
			s.OnLoaded(func() {
				up <- true
			})
			g.Go(func() error {
				return s.Start(gCtx)
			})
			select {
			case <-up:
			case <-gCtx.Done():
				_ = ln.Close()
				return g.Wait()
			}

			g.Go(func() error {
				<-gCtx.Done()
				return ln.Close()
			})

			l.Info("started listening", zap.String("address", addressFlag(v)))

			g.Go(func() error {
				for {
					// this blocks until connection or error
					conn, err := ln.Accept()
					if errors.Is(err, net.ErrClosed) {
						return nil
					} else if err != nil {
						l.Error("runSocketServer: could not accept connection", zap.Error(err))
						continue
					}

					// a goroutine handles conn so that the loop can accept other connections
					go func() {
						l.Debug("accepted connection", zap.String("source", conn.RemoteAddr().String()))
						handle.Serve(conn)
						if err := conn.Close(); err != nil {
							l.Warn("failed to close connection", zap.Error(err))
						}
					}()
				}
			})

			return g.Wait()
		},
	}

	flags := cmd.Flags()
	addAddressFlag(flags, v, ":8081")
	addStorageFlags(flags, v)

	return cmd
}
