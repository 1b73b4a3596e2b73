package logging

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type opName string

func (o opName) String() string { return string(o) }

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"debug", zapcore.DebugLevel, false},
		{"INFO", zapcore.InfoLevel, false},
		{" warn ", zapcore.WarnLevel, false},
		{"warning", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"verbose", zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestInitialize_SilentByDefault(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "")
	if err := Initialize(""); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if GetLogger().Core().Enabled(zapcore.ErrorLevel) {
		t.Error("logger should be silent when no level is configured")
	}
}

func TestInitialize_FromEnv(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "warn")
	if err := InitializeFromEnv(); err != nil {
		t.Fatalf("InitializeFromEnv() error = %v", err)
	}
	defer SetLogger(nil)

	core := GetLogger().Core()
	if !core.Enabled(zapcore.WarnLevel) || core.Enabled(zapcore.InfoLevel) {
		t.Error("logger level should be warn")
	}
}

func TestInitialize_BadLevel(t *testing.T) {
	if err := Initialize("loud"); err == nil {
		t.Error("Initialize(\"loud\") should fail")
	}
}

func TestLogPacket_DebugOnly(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	LogPacket("10.0.0.2:8085", "sent", opName("StepperMoveTo"), []byte{1, 2, 3})
	if logs.Len() != 0 {
		t.Fatalf("LogPacket at info level logged %d entries, want 0", logs.Len())
	}

	core, logs = observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))

	LogPacket("10.0.0.2:8085", "sent", opName("StepperMoveTo"), []byte{0x0a, 0x00})
	if logs.Len() != 1 {
		t.Fatalf("LogPacket at debug level logged %d entries, want 1", logs.Len())
	}
	fields := logs.All()[0].ContextMap()
	if fields["hex_dump"] != "0a00" {
		t.Errorf("hex_dump = %v, want 0a00", fields["hex_dump"])
	}
	if fields["opcode"] != "StepperMoveTo" {
		t.Errorf("opcode = %v, want StepperMoveTo", fields["opcode"])
	}
}

func TestLogPacket_ExtraFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	LogPacket("10.0.0.2:8085", "received", opName("StepperInfoResponse"), []byte{4, 0, 7, 0},
		zap.String("summary", "StepperInfoResponse{}"))

	if logs.Len() != 1 {
		t.Fatalf("logged %d entries, want 1", logs.Len())
	}
	if got := logs.All()[0].ContextMap()["summary"]; got != "StepperInfoResponse{}" {
		t.Errorf("summary = %v, want StepperInfoResponse{}", got)
	}
}

func TestLogRawBytes(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	LogRawBytes("Dropped", []byte("ok"))
	if logs.Len() != 0 {
		t.Fatalf("LogRawBytes at info level logged %d entries, want 0", logs.Len())
	}

	core, logs = observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))

	LogRawBytes("Dropped", []byte{'o', 'k', 0x00}, zap.String("reason", "foreign"))
	if logs.Len() != 1 {
		t.Fatalf("LogRawBytes at debug level logged %d entries, want 1", logs.Len())
	}
	fields := logs.All()[0].ContextMap()
	if fields["hex"] != "6f6b00" || fields["ascii"] != "ok." || fields["reason"] != "foreign" {
		t.Errorf("fields = %v", fields)
	}
}

func TestHexDump_Truncates(t *testing.T) {
	data := make([]byte, maxDumpBytes+10)
	got := hexDump(data)
	if !strings.HasSuffix(got, "...") {
		t.Errorf("hexDump of %d bytes should be truncated", len(data))
	}
	if len(got) != maxDumpBytes*2+3 {
		t.Errorf("hexDump length = %d, want %d", len(got), maxDumpBytes*2+3)
	}
	if hexDump(nil) != "" {
		t.Error("hexDump(nil) should be empty")
	}
}

func TestAsciiDump(t *testing.T) {
	if got := asciiDump([]byte{'o', 'k', 0x00, 0x7f}); got != "ok.." {
		t.Errorf("asciiDump() = %q, want %q", got, "ok..")
	}
}
