package main

import (
	"github.com/spf13/cobra"

	"github.com/kardianos/ticketauth/authlog"
	"github.com/kardianos/ticketauth/config"
	"github.com/kardianos/ticketauth/kerb"
)

// session is a logged in client wired to an in-process server.
type session struct {
	conf   *config.Config
	log    *authlog.Logger
	server *kerb.AuthServer
	client *kerb.Client
}

func openSession(cmd *cobra.Command, user string) (*session, error) {
	conf, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	log, err := newLogger(conf)
	if err != nil {
		return nil, err
	}
	srv, err := conf.NewAuthServer(cmd.Context(), log)
	if err != nil {
		return nil, err
	}
	pw, err := readSecret(cmd, "password", "Password")
	if err != nil {
		srv.Close()
		return nil, err
	}
	ce, err := conf.NewClientEngine(log)
	if err != nil {
		srv.Close()
		return nil, err
	}
	addr, _ := cmd.Flags().GetString("addr")
	c := kerb.NewClient(ce, kerb.LoopbackTransport{Server: srv}, user, addr)
	if err := c.Login(cmd.Context(), pw); err != nil {
		srv.Close()
		return nil, err
	}
	return &session{conf: conf, log: log, server: srv, client: c}, nil
}

func (s *session) close() {
	s.client.Close()
	s.server.Close()
	s.log.Sync()
}
