package winsys

import (
	"context"
	"fmt"
	"strings"
)

// ShellSignature implements SignatureVerifier over PowerShell Authenticode
// checks.
type ShellSignature struct {
	shell *Shell
}

// NewShellSignature creates a signature verifier backed by the given shell.
func NewShellSignature(shell *Shell) *ShellSignature {
	return &ShellSignature{shell: shell}
}

// Verify implements SignatureVerifier.
func (v *ShellSignature) Verify(ctx context.Context, path string) error {
	script := fmt.Sprintf(`$sig = Get-AuthenticodeSignature -LiteralPath %s -ErrorAction Stop
"$($sig.Status)"`, psQuote(path))

	out, err := v.shell.Run(ctx, script)
	if err != nil {
		return err
	}

	status := strings.TrimSpace(out)
	if !strings.EqualFold(status, "Valid") {
		return fmt.Errorf("%w: %s has signature status %s", ErrUntrustedSignature, path, status)
	}
	return nil
}
