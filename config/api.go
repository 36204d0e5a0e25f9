package config

import "errors"

// APIConfig exposes the ledger over HTTP when Addr is set.
type APIConfig struct {
	Addr  string `json:"addr"`
	Token string `json:"token"`
}

func (c APIConfig) Validate() error {
	if c.Token != "" && c.Addr == "" {
		return errors.New("api.token is set but api.addr is empty")
	}
	return nil
}
