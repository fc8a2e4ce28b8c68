package config

import "testing"

func TestInitialize(t *testing.T) {
	resetForTest()
	t.Cleanup(resetForTest)

	first := writeConfig(t, "server:\n  listen_address: \"127.0.0.1:8081\"\n")
	second := writeConfig(t, "server:\n  listen_address: \"127.0.0.1:8082\"\n")

	if err := Initialize(first); err != nil {
		t.Fatalf("failed to initialize config: %v", err)
	}
	if err := Initialize(second); err != nil {
		t.Fatalf("second Initialize should be a no-op: %v", err)
	}

	if got := MustGetConfig().Server.ListenAddress; got != "127.0.0.1:8081" {
		t.Errorf("expected first file to win, got %q", got)
	}

	cfg, err := ReloadConfig(second)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if cfg.Server.ListenAddress != "127.0.0.1:8082" || GetConfig() != cfg {
		t.Errorf("reload did not replace the configuration")
	}
}

func TestReloadConfig_KeepsCurrentOnError(t *testing.T) {
	resetForTest()
	t.Cleanup(resetForTest)

	current := Default()
	SetConfig(current)

	if _, err := ReloadConfig(writeConfig(t, "storage:\n  backend: redis\n")); err == nil {
		t.Fatal("expected reload error")
	}
	if GetConfig() != current {
		t.Error("failed reload replaced the configuration")
	}
}

func TestMustGetConfig_Panics(t *testing.T) {
	resetForTest()
	t.Cleanup(resetForTest)

	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	MustGetConfig()
}
