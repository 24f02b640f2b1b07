package main

import (
	"fmt"
	"io"
	"os"
)

const (
	defaultPassphraseEnv = "GK_KEYSTORE_PASSPHRASE"
	defaultSecretEnv     = "GK_LEDGERD_HMAC_SECRET"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	switch args[0] {
	case "keygen":
		return runKeygen(args[1:], stdout, stderr)
	case "address":
		return runAddress(args[1:], stdout, stderr)
	case "token":
		return runToken(args[1:], stdout, stderr)
	case "init-config":
		return runInitConfig(args[1:], stdout, stderr)
	case "inspect":
		return runInspect(args[1:], stdout, stderr)
	case "audit-verify":
		return runAuditVerify(args[1:], stdout, stderr)
	case "audit-export":
		return runAuditExport(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func usage() string {
	return `Usage: ledgerctl <command> [flags]

Commands:
  keygen        generate an encrypted keystore and print its address
  address       print the address stored in a keystore
  token         mint a bearer token for ledgerd
  init-config   write a default ledger config and authority keystore
  inspect       dump stakes, loans and pool liquidity from a stopped node's data dir
  audit-verify  check the audit log hash chain
  audit-export  export the audit log to a parquet file`
}
