package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/This-Is-Captain-Code/ethtaipei-gk/crypto"
	"github.com/This-Is-Captain-Code/ethtaipei-gk/native/lending"
)

// Config describes a ledger node: where it stores data, who the authority is,
// which address holds pool funds and the ledger parameters.
type Config struct {
	DataDir               string              `toml:"DataDir"`
	AuthorityKeystorePath string              `toml:"AuthorityKeystorePath"`
	Authorities           []string            `toml:"Authorities"`
	Custodian             string              `toml:"Custodian"`
	Params                lending.Params      `toml:"Params"`
	Pauses                Pauses              `toml:"Pauses"`
	Genesis               []GenesisAllocation `toml:"Genesis"`
}

// Pauses halts ledger modules. It implements native/common.PauseView.
type Pauses struct {
	Staking bool `toml:"Staking"`
	Lending bool `toml:"Lending"`
	Pool    bool `toml:"Pool"`
}

func (p Pauses) IsPaused(module string) bool {
	switch module {
	case lending.ModuleStaking:
		return p.Staking
	case lending.ModuleLending:
		return p.Lending
	case lending.ModulePool:
		return p.Pool
	default:
		return false
	}
}

// Modules returns the pause flags keyed by module name.
func (p Pauses) Modules() map[string]bool {
	return map[string]bool{
		lending.ModuleStaking: p.Staking,
		lending.ModuleLending: p.Lending,
		lending.ModulePool:    p.Pool,
	}
}

// GenesisAllocation credits Amount to Address the first time the ledger
// starts on an empty data directory.
type GenesisAllocation struct {
	Address string `toml:"Address"`
	Amount  string `toml:"Amount"`
}

// Allocation is a parsed GenesisAllocation.
type Allocation struct {
	Address crypto.Address
	Amount  *big.Int
}

// Load reads the configuration at path, creating a default file and
// authority keystore when it does not exist.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := &Config{Params: lending.DefaultParams()}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0])
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks addresses, parameters and genesis allocations.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return errors.New("config: DataDir required")
	}
	authorities, err := c.AuthorityAddresses()
	if err != nil {
		return err
	}
	custodian, err := c.CustodianAddress()
	if err != nil {
		return err
	}
	for _, authority := range authorities {
		if authority == custodian {
			return fmt.Errorf("config: custodian %s must not be an authority", custodian)
		}
	}
	if err := c.Params.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := c.Allocations(); err != nil {
		return err
	}
	return nil
}

// AuthorityAddresses parses the configured authorities. When none are listed
// the address of the authority keystore is used.
func (c *Config) AuthorityAddresses() ([]crypto.Address, error) {
	out := make([]crypto.Address, 0, len(c.Authorities))
	for _, raw := range c.Authorities {
		addr, err := crypto.DecodeAddress(raw)
		if err != nil {
			return nil, fmt.Errorf("config: authority %q: %w", raw, err)
		}
		out = append(out, addr)
	}
	if len(out) == 0 && strings.TrimSpace(c.AuthorityKeystorePath) != "" {
		addr, err := crypto.KeystoreAddress(c.AuthorityKeystorePath)
		if err != nil {
			return nil, fmt.Errorf("config: authority keystore: %w", err)
		}
		out = append(out, addr)
	}
	if len(out) == 0 {
		return nil, errors.New("config: at least one authority required")
	}
	return out, nil
}

// CustodianAddress parses the pool custody address.
func (c *Config) CustodianAddress() (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(c.Custodian)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("config: custodian: %w", err)
	}
	if addr.IsZero() {
		return crypto.Address{}, errors.New("config: custodian must not be the zero address")
	}
	return addr, nil
}

// Allocations parses the genesis allocations.
func (c *Config) Allocations() ([]Allocation, error) {
	seen := make(map[crypto.Address]struct{}, len(c.Genesis))
	out := make([]Allocation, 0, len(c.Genesis))
	for i, alloc := range c.Genesis {
		addr, err := crypto.DecodeAddress(alloc.Address)
		if err != nil {
			return nil, fmt.Errorf("config: genesis[%d] address: %w", i, err)
		}
		if _, dup := seen[addr]; dup {
			return nil, fmt.Errorf("config: genesis[%d] duplicates %s", i, addr)
		}
		seen[addr] = struct{}{}
		amount, ok := new(big.Int).SetString(strings.TrimSpace(alloc.Amount), 10)
		if !ok || amount.Sign() <= 0 {
			return nil, fmt.Errorf("config: genesis[%d] amount %q must be a positive integer", i, alloc.Amount)
		}
		out = append(out, Allocation{Address: addr, Amount: amount})
	}
	return out, nil
}

// Default returns a configuration for the given authority and custodian.
func Default(authority, custodian crypto.Address) *Config {
	return &Config{
		DataDir:     "./gk-data",
		Authorities: []string{authority.String()},
		Custodian:   custodian.String(),
		Params:      lending.DefaultParams(),
	}
}

// createDefault generates an authority keystore and a custodian address and
// writes a default configuration next to it.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, "", false); err != nil {
		return nil, err
	}
	custodianKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	cfg := Default(key.PubKey().Address(), custodianKey.PubKey().Address())
	cfg.Authorities = nil
	cfg.AuthorityKeystorePath = keystorePath
	if err := Write(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Write persists cfg as TOML.
func Write(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "authority.keystore")
}
