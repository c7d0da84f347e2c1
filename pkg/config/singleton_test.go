package config

import (
	"sync"
	"testing"
)

func TestInitialize(t *testing.T) {
	reset()
	t.Cleanup(reset)

	path := writeConfig(t, validConfig)
	if err := Initialize(path); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	cfg := GetConfig()
	if cfg == nil {
		t.Fatal("expected config after Initialize")
	}
	if cfg.Server.ListenAddress != "0.0.0.0:9090" {
		t.Errorf("listen address = %q", cfg.Server.ListenAddress)
	}
	if Path() != path {
		t.Errorf("Path() = %q", Path())
	}

	// Later calls keep the first configuration.
	other := writeConfig(t, "server:\n  listen_address: 127.0.0.1:1\n")
	if err := Initialize(other); err != nil {
		t.Fatalf("second Initialize() error = %v", err)
	}
	if GetConfig() != cfg {
		t.Error("second Initialize replaced the configuration")
	}
}

func TestInitialize_Error(t *testing.T) {
	reset()
	t.Cleanup(reset)

	if err := Initialize(writeConfig(t, "routing:\n  max_attempts: -1\n")); err == nil {
		t.Fatal("expected validation error")
	}
	if GetConfig() != nil {
		t.Error("failed Initialize should leave no config")
	}
}

func TestReloadConfig(t *testing.T) {
	reset()
	t.Cleanup(reset)

	if _, err := ReloadConfig(); err == nil {
		t.Fatal("reload before Initialize should fail")
	}

	path := writeConfig(t, validConfig)
	if err := Initialize(path); err != nil {
		t.Fatal(err)
	}
	first := GetConfig()

	cfg, err := ReloadConfig()
	if err != nil {
		t.Fatalf("ReloadConfig() error = %v", err)
	}
	if cfg == first || GetConfig() != cfg {
		t.Error("reload should install a fresh config")
	}
}

func TestMustGetConfig(t *testing.T) {
	reset()
	t.Cleanup(reset)

	defer func() {
		if recover() == nil {
			t.Error("MustGetConfig should panic before Initialize")
		}
	}()
	MustGetConfig()
}

func TestGetConfig_Concurrent(t *testing.T) {
	reset()
	t.Cleanup(reset)
	SetConfig(NewDefault(), "")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if GetConfig() == nil {
				t.Error("GetConfig returned nil")
			}
		}()
		go func() {
			defer wg.Done()
			SetConfig(NewDefault(), "")
		}()
	}
	wg.Wait()
}
