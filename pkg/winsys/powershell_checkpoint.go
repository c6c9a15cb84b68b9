package winsys

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// checkpointTimeout allows for the several minutes Checkpoint-Computer can
// take on a cold volume shadow copy service.
const checkpointTimeout = 5 * time.Minute

// ShellCheckpoint implements CheckpointCreator over PowerShell using system
// restore points.
type ShellCheckpoint struct {
	shell *Shell
}

// NewShellCheckpoint creates a checkpoint creator backed by the given shell.
func NewShellCheckpoint(shell *Shell) *ShellCheckpoint {
	return &ShellCheckpoint{shell: shell}
}

// Create implements CheckpointCreator. The returned identifier is the
// restore point sequence number.
func (c *ShellCheckpoint) Create(ctx context.Context, description string) (string, error) {
	if description == "" {
		description = "Palisade checkpoint"
	}

	runCtx, cancel := context.WithTimeout(ctx, checkpointTimeout)
	defer cancel()

	// Checkpoint-Computer returns nothing useful, so read the newest
	// sequence number back afterwards.
	script := fmt.Sprintf(`Checkpoint-Computer -Description %s -RestorePointType 'MODIFY_SETTINGS' -ErrorAction Stop
$rp = Get-ComputerRestorePoint -ErrorAction Stop | Sort-Object SequenceNumber | Select-Object -Last 1
"$($rp.SequenceNumber)"`, psQuote(description))

	out, err := c.shell.Run(runCtx, script)
	if err != nil {
		return "", err
	}

	seq := strings.TrimSpace(out)
	if seq == "" {
		return "", fmt.Errorf("restore point created but no sequence number reported")
	}
	return seq, nil
}
