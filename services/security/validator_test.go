package security

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logicflow/services/flow"
)

const safeProgram = `"""Generated strategy."""
import math
import numpy as np
import pandas as pd
import talib
from collections import deque
from quantflow import StrategyBase, crossed_above

PARAMS = {"capital": 100000}


class GeneratedStrategy(StrategyBase):
    params = PARAMS

    def compute(self, data):
        close = data["close"]
        signals = []
        ind_a = talib.SMA(close, timeperiod=20)
        cond_b = crossed_above(close, ind_a)
        sig_c = (cond_b).fillna(False)
        signals.append(("BUY", sig_c))
        result = {"signals": signals, "scale": math.sqrt(2), "open": "import os"}
        return result
`

func validate(t *testing.T, v *Validator, code string) Result {
	t.Helper()
	return v.Validate(context.Background(), code)
}

func TestValidate_SafeProgram(t *testing.T) {
	v := NewValidator(DefaultPolicy())

	result := validate(t, v, safeProgram)

	assert.True(t, result.IsSafe, "violations: %v", result.Violations)
	assert.Empty(t, result.Violations)
	assert.Equal(t, 0, result.Complexity)
}

func TestValidate_ForbiddenImports(t *testing.T) {
	tests := []struct {
		name string
		code string
		want string
	}{
		{"plain import", "import os\n", `"os"`},
		{"dotted import", "import os.path\n", `"os.path"`},
		{"second of several", "import numpy as np, sys\n", `"sys"`},
		{"aliased", "import subprocess as sp\n", `"subprocess"`},
		{"from import", "from socket import socket\n", `"socket"`},
		{"relative", "from . import helpers\n", "relative imports"},
		{"future", "from __future__ import annotations\n", `"__future__"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator(DefaultPolicy())

			result := validate(t, v, tt.code)

			assert.False(t, result.IsSafe)
			require.NotEmpty(t, result.Violations)
			assert.Equal(t, flow.SeverityCritical, result.Violations[0].Severity)
			assert.Equal(t, flow.StageSecurity, result.Violations[0].Stage)
			assert.Contains(t, result.Violations[0].Message, tt.want)
		})
	}
}

func TestValidate_ForbiddenCalls(t *testing.T) {
	tests := []struct {
		name string
		code string
		want string
	}{
		{"eval", "x = eval(\"1 + 1\")\n", "forbidden function \"eval\""},
		{"exec in expression", "y = [exec(s) for s in items]\n", "forbidden function \"exec\""},
		{"dynamic import", "m = __import__(\"os\")\n", "forbidden function \"__import__\""},
		{"file io", "fh = open(\"/etc/passwd\")\n", "forbidden function \"open\""},
		{"module attribute", "builtins.exec(\"x\")\n", "forbidden function \"builtins.exec\""},
		{"process via allowed module", "np.os.system(\"ls\")\n", "forbidden function \"np.os.system\""},
		{"forbidden module in chain", "np.os.getcwd()\n", "forbidden module \"os\""},
		{"pandas file read", "df = pd.read_csv(\"data.csv\")\n", "read_csv"},
		{"numpy raw file read", "leak = np.fromfile(\"/etc/passwd\", dtype=np.uint8)\n", "forbidden function \"np.fromfile\""},
		{"numpy pickle load", "m = np.load(\"m.npy\", allow_pickle=True)\n", "forbidden function \"np.load\""},
		{"numpy text read", "t = np.loadtxt(\"/etc/shadow\")\n", "forbidden function \"np.loadtxt\""},
		{"numpy genfromtxt", "t = np.genfromtxt(\"x.txt\")\n", "np.genfromtxt"},
		{"numpy memmap", "m = np.memmap(\"x.bin\")\n", "np.memmap"},
		{"numpy save", "np.save(\"/tmp/x\", close)\n", "forbidden function \"np.save\""},
		{"numpy savez", "np.savez(\"/tmp/x\", a=close)\n", "np.savez"},
		{"numpy savetxt", "np.savetxt(\"/tmp/x\", close)\n", "np.savetxt"},
		{"array tofile", "close.values.tofile(\"/tmp/x\")\n", "tofile"},
		{"pickle loads", "o = np.loads(b)\n", "np.loads"},
		{"pandas url read", "df = pd.read_json(\"http://evil.example/x\")\n", "forbidden function \"pd.read_json\""},
		{"pandas html read", "df = pd.read_html(\"http://evil.example\")\n", "pd.read_html"},
		{"pandas parquet read", "df = pd.read_parquet(\"s3://bucket/x\")\n", "pd.read_parquet"},
		{"pandas feather read", "df = pd.read_feather(\"x\")\n", "pd.read_feather"},
		{"pandas excel read", "df = pd.read_excel(\"x.xlsx\")\n", "pd.read_excel"},
		{"pandas table read", "df = pd.read_table(\"x\")\n", "pd.read_table"},
		{"pandas fwf read", "df = pd.read_fwf(\"x\")\n", "pd.read_fwf"},
		{"pandas hdf read", "df = pd.read_hdf(\"x.h5\")\n", "pd.read_hdf"},
		{"pandas xml read", "df = pd.read_xml(\"x.xml\")\n", "pd.read_xml"},
		{"pandas clipboard read", "df = pd.read_clipboard()\n", "pd.read_clipboard"},
		{"pandas json write", "close.to_json(\"/tmp/x\")\n", "close.to_json"},
		{"pandas parquet write", "close.to_frame().to_parquet(\"/tmp/x\")\n", "to_parquet"},
		{"aliased file reader", "r = pd.read_json\n", "reference to forbidden name \"read_json\""},
		{"alias of builtin", "e = eval\n", "reference to forbidden name \"eval\""},
		{"reflection", "getattr(np, \"load\")\n", "forbidden function \"getattr\""},
		{"dunder attribute", "k = ().__class__.__bases__\n", "dunder attribute"},
		{"dunder call", "x = np.__getattribute__(\"os\")\n", "dunder method"},
		{"builtins name", "b = __builtins__\n", "\"__builtins__\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator(DefaultPolicy())

			result := validate(t, v, tt.code)

			assert.False(t, result.IsSafe)
			require.NotEmpty(t, result.Violations)
			var messages []string
			for _, viol := range result.Violations {
				messages = append(messages, viol.Message)
			}
			assert.Contains(t, strings.Join(messages, "\n"), tt.want)
		})
	}
}

func TestValidate_KeywordNamesAreNotReferences(t *testing.T) {
	v := NewValidator(DefaultPolicy())

	result := validate(t, v, "frame = pd.DataFrame(dict(open=[1.0], close=[2.0]))\n")

	assert.True(t, result.IsSafe, "violations: %v", result.Violations)
}

func TestValidate_ParseFailure(t *testing.T) {
	v := NewValidator(DefaultPolicy())

	result := validate(t, v, "def broken(:\n    return\n")

	assert.False(t, result.IsSafe)
	require.Len(t, result.Violations, 1)
	assert.Equal(t, flow.SeverityCritical, result.Violations[0].Severity)
	assert.Contains(t, result.Violations[0].Message, "not valid Python")
	assert.Equal(t, 1, result.Violations[0].Location.Line)
}

func TestValidate_ReportsPosition(t *testing.T) {
	v := NewValidator(DefaultPolicy())

	result := validate(t, v, "x = 1\n    \nimport os\n")

	require.Len(t, result.Violations, 1)
	assert.Equal(t, 3, result.Violations[0].Location.Line)
	assert.Equal(t, 1, result.Violations[0].Location.Column)
}

func TestValidate_Complexity(t *testing.T) {
	code := `for i in range(3):
    if i > 1:
        while False:
            pass
`
	t.Run("score", func(t *testing.T) {
		result := validate(t, NewValidator(DefaultPolicy()), code)

		assert.True(t, result.IsSafe)
		assert.Equal(t, 6, result.Complexity) // 1 + 2 + 3
	})

	t.Run("over ceiling", func(t *testing.T) {
		policy := DefaultPolicy()
		policy.MaxComplexity = 5

		result := validate(t, NewValidator(policy), code)

		assert.False(t, result.IsSafe)
		require.Len(t, result.Violations, 1)
		assert.Equal(t, flow.SeverityHigh, result.Violations[0].Severity)
		assert.Contains(t, result.Violations[0].Message, "exceeds ceiling 5")
	})
}

func TestPolicy_WithAllowedImports(t *testing.T) {
	base := DefaultPolicy()
	extended := base.WithAllowedImports("scipy")

	assert.True(t, validate(t, NewValidator(extended), "import scipy.stats\n").IsSafe)
	assert.False(t, validate(t, NewValidator(base), "import scipy.stats\n").IsSafe)
	assert.NotContains(t, base.AllowedImports, "scipy")
}
