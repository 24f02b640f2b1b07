package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/This-Is-Captain-Code/ethtaipei-gk/cmd/internal/passphrase"
	ledgercfg "github.com/This-Is-Captain-Code/ethtaipei-gk/config"
	"github.com/This-Is-Captain-Code/ethtaipei-gk/crypto"
	"github.com/This-Is-Captain-Code/ethtaipei-gk/native/lending"
	"github.com/This-Is-Captain-Code/ethtaipei-gk/services/ledgerd/audit"
	"github.com/This-Is-Captain-Code/ethtaipei-gk/services/ledgerd/server"
	"github.com/This-Is-Captain-Code/ethtaipei-gk/storage"
)

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string, stderr io.Writer) bool {
	if err := fs.Parse(args); err != nil {
		return false
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return false
	}
	return true
}

func writeJSON(stdout io.Writer, v any) {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func runKeygen(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("keygen", stderr)
	var out, passEnv string
	var force bool
	fs.StringVar(&out, "out", "", "keystore file to write")
	fs.StringVar(&passEnv, "passphrase-env", defaultPassphraseEnv, "environment variable holding the passphrase")
	fs.BoolVar(&force, "force", false, "overwrite an existing keystore")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	out = strings.TrimSpace(out)
	if out == "" {
		fmt.Fprintln(stderr, "Error: --out is required")
		return 1
	}
	pass, err := passphrase.NewSource(passEnv, "keystore").Get()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fmt.Fprintf(stderr, "Error: generate key: %v\n", err)
		return 1
	}
	if err := crypto.SaveToKeystore(out, key, pass, force); err != nil {
		fmt.Fprintf(stderr, "Error: save keystore: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, key.PubKey().Address().String())
	return 0
}

func runAddress(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("address", stderr)
	var path string
	fs.StringVar(&path, "keystore", "", "keystore file")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if strings.TrimSpace(path) == "" {
		fmt.Fprintln(stderr, "Error: --keystore is required")
		return 1
	}
	addr, err := crypto.KeystoreAddress(path)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, addr.String())
	return 0
}

func runToken(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("token", stderr)
	var subject, keystorePath, secretEnv, issuer, audience string
	var ttl time.Duration
	fs.StringVar(&subject, "subject", "", "ledger address the token authenticates")
	fs.StringVar(&keystorePath, "keystore", "", "read the subject from this keystore")
	fs.StringVar(&secretEnv, "secret-env", defaultSecretEnv, "environment variable holding the HMAC secret")
	fs.StringVar(&issuer, "issuer", "", "token issuer")
	fs.StringVar(&audience, "audience", "", "token audience")
	fs.DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	if !parseFlags(fs, args, stderr) {
		return 1
	}

	var (
		addr crypto.Address
		err  error
	)
	switch {
	case strings.TrimSpace(subject) != "":
		addr, err = crypto.DecodeAddress(subject)
	case strings.TrimSpace(keystorePath) != "":
		addr, err = crypto.KeystoreAddress(keystorePath)
	default:
		err = errors.New("--subject or --keystore is required")
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	secret := strings.TrimSpace(os.Getenv(secretEnv))
	if secret == "" {
		fmt.Fprintf(stderr, "Error: %s is not set\n", secretEnv)
		return 1
	}
	token, err := server.SignToken(server.AuthConfig{
		HMACSecret: secret,
		Issuer:     strings.TrimSpace(issuer),
		Audience:   strings.TrimSpace(audience),
	}, addr, ttl)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, token)
	return 0
}

func runInitConfig(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("init-config", stderr)
	var out string
	fs.StringVar(&out, "out", "ledger.toml", "config file to create")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if _, err := os.Stat(out); err == nil {
		fmt.Fprintf(stderr, "Error: %s already exists\n", out)
		return 1
	}
	cfg, err := ledgercfg.Load(out)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	authorities, err := cfg.AuthorityAddresses()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "wrote %s\n", out)
	fmt.Fprintf(stdout, "authority: %s\n", authorities[0])
	fmt.Fprintf(stdout, "custodian: %s\n", cfg.Custodian)
	return 0
}

type inspectReport struct {
	Liquidity string               `json:"liquidity"`
	Stakes    []lending.StakeEntry `json:"stakes"`
	Loans     []lending.LoanEntry  `json:"loans"`
}

func runInspect(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("inspect", stderr)
	var dataDir string
	fs.StringVar(&dataDir, "data", "", "node data directory (ledgerd must be stopped)")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if strings.TrimSpace(dataDir) == "" {
		fmt.Fprintln(stderr, "Error: --data is required")
		return 1
	}
	db, err := storage.NewLevelDB(dataDir)
	if err != nil {
		fmt.Fprintf(stderr, "Error: open %s: %v\n", dataDir, err)
		return 1
	}
	defer db.Close()

	report, err := inspect(lending.NewStoreState(db))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	writeJSON(stdout, report)
	return 0
}

func inspect(state *lending.StoreState) (*inspectReport, error) {
	liquidity, err := state.GetLiquidity()
	if err != nil {
		return nil, err
	}
	stakes, err := state.ListStakes()
	if err != nil {
		return nil, err
	}
	loans, err := state.ListLoans()
	if err != nil {
		return nil, err
	}
	if liquidity == nil {
		liquidity = new(big.Int)
	}
	return &inspectReport{Liquidity: liquidity.String(), Stakes: stakes, Loans: loans}, nil
}

func openAuditStore(fs *flag.FlagSet, args []string, stderr io.Writer, extra func()) (*audit.Store, bool) {
	var driver, dsn string
	fs.StringVar(&driver, "driver", "sqlite", "audit database driver (postgres or sqlite)")
	fs.StringVar(&dsn, "dsn", "", "audit database DSN")
	if extra != nil {
		extra()
	}
	if !parseFlags(fs, args, stderr) {
		return nil, false
	}
	if strings.TrimSpace(dsn) == "" {
		fmt.Fprintln(stderr, "Error: --dsn is required")
		return nil, false
	}
	db, err := audit.Open(driver, dsn)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return nil, false
	}
	store, err := audit.NewStore(db, nil)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return nil, false
	}
	return store, true
}

func runAuditVerify(args []string, stdout, stderr io.Writer) int {
	store, ok := openAuditStore(newFlagSet("audit-verify", stderr), args, stderr, nil)
	if !ok {
		return 1
	}
	result, err := store.Verify(context.Background())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	writeJSON(stdout, result)
	return 0
}

func runAuditExport(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("audit-export", stderr)
	var out string
	store, ok := openAuditStore(fs, args, stderr, func() {
		fs.StringVar(&out, "out", "audit.parquet", "parquet file to write")
	})
	if !ok {
		return 1
	}
	n, err := store.ExportParquet(context.Background(), out)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "exported %d entries to %s\n", n, out)
	return 0
}
