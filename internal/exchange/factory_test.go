package exchange

import "testing"

func TestNewGateway(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"bybit", false},
		{"binance", false},
		{"Bybit", false},
		{"BINANCE", false},
		{"kraken", true},
		{"", true},
	}

	for _, tt := range tests {
		gw, err := NewGateway(tt.name, nil)
		if tt.wantErr {
			if err == nil {
				t.Errorf("NewGateway(%q): ожидали ошибку, получили nil", tt.name)
			}
			continue
		}
		if err != nil {
			t.Errorf("NewGateway(%q): ожидали успех, получили ошибку: %v", tt.name, err)
			continue
		}
		if gw == nil {
			t.Errorf("NewGateway(%q): ожидали шлюз, получили nil", tt.name)
		}
	}
}

func TestIsSupported(t *testing.T) {
	if !IsSupported("bybit") || !IsSupported("BINANCE") {
		t.Error("ожидали поддержку bybit и binance")
	}
	if IsSupported("okx") {
		t.Error("не ожидали поддержку okx")
	}
}
