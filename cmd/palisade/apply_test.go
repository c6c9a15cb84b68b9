package main

import (
	"strings"
	"testing"
)

func TestRunApplyRejectsEmptySelection(t *testing.T) {
	applyFlags.all = false
	err := runApply(applyCmd, nil)
	if err == nil || !strings.Contains(err.Error(), "--all") {
		t.Errorf("runApply() with no selection = %v, want --all hint", err)
	}
}

func TestRunApplyRejectsAllWithIDs(t *testing.T) {
	applyFlags.all = true
	defer func() { applyFlags.all = false }()

	err := runApply(applyCmd, []string{"disable-guest-account"})
	if err == nil || !strings.Contains(err.Error(), "cannot be combined") {
		t.Errorf("runApply() with --all and ids = %v, want combination error", err)
	}
}

func TestRunRevertRejectsEmptySelection(t *testing.T) {
	revertFlags.all = false
	err := runRevert(revertCmd, nil)
	if err == nil || !strings.Contains(err.Error(), "--all") {
		t.Errorf("runRevert() with no selection = %v, want --all hint", err)
	}
}

func TestOutputFormatFlag(t *testing.T) {
	orig := clientFlags.format
	defer func() { clientFlags.format = orig }()

	clientFlags.format = "json"
	if _, err := outputFormat(); err != nil {
		t.Errorf("outputFormat(json) error = %v", err)
	}

	clientFlags.format = "xml"
	if _, err := outputFormat(); err == nil {
		t.Error("outputFormat(xml) expected error")
	}
}
