package winsys

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"palisade-hq/palisade/pkg/policy"
)

// ShellRegistry implements RegistryStore over PowerShell.
type ShellRegistry struct {
	shell *Shell
}

// NewShellRegistry creates a registry store backed by the given shell.
func NewShellRegistry(shell *Shell) *ShellRegistry {
	return &ShellRegistry{shell: shell}
}

// getValueScript reads one value and emits "kind|data" with data in the
// canonical encoding. Expand strings come back unexpanded so round-trips
// preserve the stored text.
const getValueScript = `$key = Get-Item -LiteralPath %s -ErrorAction Stop
$kind = $key.GetValueKind(%s)
$value = $key.GetValue(%s, $null, [Microsoft.Win32.RegistryValueOptions]::DoNotExpandEnvironmentNames)
switch ("$kind") {
    'DWord' { "dword|" + [UInt32]$value }
    'QWord' { "qword|" + [UInt64]$value }
    'String' { "string|" + $value }
    'ExpandString' { "expand_string|" + $value }
    'MultiString' { "multi_string|" + ($value -join "` + "`n" + `") }
    'Binary' { "binary|" + (($value | ForEach-Object { $_.ToString('x2') }) -join '') }
    default { throw "unsupported value kind $kind" }
}`

// GetValue implements RegistryStore.
func (r *ShellRegistry) GetValue(ctx context.Context, path, name string) (RegistryValue, bool, error) {
	providerPath, err := regProviderPath(path)
	if err != nil {
		return RegistryValue{}, false, err
	}

	quotedName := psQuote(name)
	script := fmt.Sprintf(getValueScript, psQuote(providerPath), quotedName, quotedName)

	out, err := r.shell.Run(ctx, script)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return RegistryValue{}, false, nil
		}
		return RegistryValue{}, false, err
	}

	kind, data, found := strings.Cut(out, "|")
	if !found {
		return RegistryValue{}, false, fmt.Errorf("unexpected registry read output %q", truncate(out, 80))
	}
	valueType, err := policy.ParseRegistryValueType(kind)
	if err != nil {
		return RegistryValue{}, false, err
	}

	return RegistryValue{Type: valueType, Data: data}, true, nil
}

// SetValue implements RegistryStore. The key is created when absent.
func (r *ShellRegistry) SetValue(ctx context.Context, path, name string, value RegistryValue) error {
	providerPath, err := regProviderPath(path)
	if err != nil {
		return err
	}

	literal, psType, err := psValueLiteral(value)
	if err != nil {
		return err
	}

	script := fmt.Sprintf(
		`if (-not (Test-Path -LiteralPath %s)) { New-Item -Path %s -Force | Out-Null }
Set-ItemProperty -LiteralPath %s -Name %s -Value %s -Type %s -Force -ErrorAction Stop`,
		psQuote(providerPath), psQuote(providerPath),
		psQuote(providerPath), psQuote(name), literal, psType)

	_, err = r.shell.Run(ctx, script)
	return err
}

// DeleteValue implements RegistryStore.
func (r *ShellRegistry) DeleteValue(ctx context.Context, path, name string) error {
	providerPath, err := regProviderPath(path)
	if err != nil {
		return err
	}

	script := fmt.Sprintf(`Remove-ItemProperty -LiteralPath %s -Name %s -Force -ErrorAction Stop`,
		psQuote(providerPath), psQuote(name))

	_, err = r.shell.Run(ctx, script)
	return err
}

// DeleteKey implements RegistryStore. The whole subtree goes with the key.
func (r *ShellRegistry) DeleteKey(ctx context.Context, path string) error {
	providerPath, err := regProviderPath(path)
	if err != nil {
		return err
	}

	script := fmt.Sprintf(`Remove-Item -LiteralPath %s -Recurse -Force -ErrorAction Stop`,
		psQuote(providerPath))

	_, err = r.shell.Run(ctx, script)
	return err
}

// KeyExists implements RegistryStore.
func (r *ShellRegistry) KeyExists(ctx context.Context, path string) (bool, error) {
	providerPath, err := regProviderPath(path)
	if err != nil {
		return false, err
	}

	out, err := r.shell.Run(ctx, fmt.Sprintf(`Test-Path -LiteralPath %s`, psQuote(providerPath)))
	if err != nil {
		return false, err
	}
	return strings.EqualFold(out, "True"), nil
}

// psValueLiteral renders the canonical data string as a PowerShell value
// literal plus the matching -Type argument.
func psValueLiteral(value RegistryValue) (literal, psType string, err error) {
	switch value.Type {
	case policy.RegDWord:
		n, err := strconv.ParseUint(value.Data, 0, 32)
		if err != nil {
			return "", "", fmt.Errorf("invalid dword data %q: %w", value.Data, err)
		}
		return strconv.FormatUint(n, 10), "DWord", nil

	case policy.RegQWord:
		n, err := strconv.ParseUint(value.Data, 0, 64)
		if err != nil {
			return "", "", fmt.Errorf("invalid qword data %q: %w", value.Data, err)
		}
		return strconv.FormatUint(n, 10), "QWord", nil

	case policy.RegString:
		return psQuote(value.Data), "String", nil

	case policy.RegExpandString:
		return psQuote(value.Data), "ExpandString", nil

	case policy.RegMultiString:
		if value.Data == "" {
			return "@()", "MultiString", nil
		}
		parts := strings.Split(value.Data, "\n")
		quoted := make([]string, len(parts))
		for i, p := range parts {
			quoted[i] = psQuote(p)
		}
		return "@(" + strings.Join(quoted, ",") + ")", "MultiString", nil

	case policy.RegBinary:
		data := strings.ToLower(value.Data)
		if len(data)%2 != 0 {
			return "", "", fmt.Errorf("binary data %q has odd hex length", value.Data)
		}
		if data == "" {
			return "([byte[]]@())", "Binary", nil
		}
		bytes := make([]string, 0, len(data)/2)
		for i := 0; i < len(data); i += 2 {
			pair := data[i : i+2]
			if _, err := strconv.ParseUint(pair, 16, 8); err != nil {
				return "", "", fmt.Errorf("binary data %q is not hex: %w", value.Data, err)
			}
			bytes = append(bytes, "0x"+pair)
		}
		return "([byte[]]@(" + strings.Join(bytes, ",") + "))", "Binary", nil

	default:
		return "", "", fmt.Errorf("unknown registry value type %q", value.Type)
	}
}
