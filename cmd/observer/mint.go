package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"isccObserver/internal/config"
	"isccObserver/internal/iscc"
	"isccObserver/internal/isccid"
	"isccObserver/internal/observer"
)

func runMint(cmd *cobra.Command, args []string) error {
	ledger, _ := cmd.Flags().GetString("ledger")
	counter, _ := cmd.Flags().GetUint64("counter")

	header, err := ledgerHeader(ledger)
	if err != nil {
		return err
	}
	id, err := isccid.Mint(header, args[0], counter)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	var failed int
	for _, code := range args {
		components, err := iscc.Components(code)
		if err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\tinvalid\t%v\n", code, err)
			failed++
			continue
		}
		fingerprint, err := isccid.Fingerprint(code)
		if err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\tinvalid\t%v\n", code, err)
			failed++
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\tvalid\t%v\t%x\n", code, components, fingerprint)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d codes invalid", failed, len(args))
	}
	return nil
}

func ledgerHeader(ledger string) (byte, error) {
	switch ledger {
	case config.LedgerBloxberg:
		return observer.BloxbergHeader, nil
	case config.LedgerCoblo:
		return observer.CobloHeader, nil
	default:
		return 0, fmt.Errorf("unknown ledger: %s", ledger)
	}
}
