package app

import (
	"testing"
	"walletwatch/clients/notifier"
)

func TestDiff_EmptyOldIsNewHoldingBuy(t *testing.T) {
	deltas := Diff("W", Holdings{}, Holdings{"X": 7, "Y": 1.5})

	if len(deltas) != 2 {
		t.Fatalf("expected 2 deltas, got %d", len(deltas))
	}
	for _, d := range deltas {
		if d.Action != notifier.ActionBuy || !d.NewHolding || d.PercentChange != 100 {
			t.Errorf("expected new-holding BUY at 100%%, got %+v", d)
		}
	}
	if deltas[0].Asset != "X" || deltas[1].Asset != "Y" {
		t.Errorf("expected sorted assets, got %s, %s", deltas[0].Asset, deltas[1].Asset)
	}
}

func TestDiff_SellPercent(t *testing.T) {
	deltas := Diff("W", Holdings{"X": 10}, Holdings{"X": 5})

	if len(deltas) != 1 {
		t.Fatalf("expected 1 delta, got %d", len(deltas))
	}
	d := deltas[0]
	if d.Action != notifier.ActionSell {
		t.Errorf("expected SELL, got %s", d.Action)
	}
	if d.PercentChange != 50 {
		t.Errorf("expected 50%%, got %v", d.PercentChange)
	}
	if d.Delta != -5 || d.Quantity() != 5 {
		t.Errorf("unexpected delta %v / quantity %v", d.Delta, d.Quantity())
	}
}

func TestDiff_BuyPercent(t *testing.T) {
	deltas := Diff("W", Holdings{"X": 4}, Holdings{"X": 5})

	if len(deltas) != 1 || deltas[0].Action != notifier.ActionBuy {
		t.Fatalf("expected 1 BUY, got %+v", deltas)
	}
	if deltas[0].PercentChange != 25 || deltas[0].NewHolding {
		t.Errorf("expected 25%% non-new BUY, got %+v", deltas[0])
	}
}

func TestDiff_VanishedAssetIsFullSell(t *testing.T) {
	deltas := Diff("W", Holdings{"X": 3, "Y": 2}, Holdings{"Y": 2})

	if len(deltas) != 1 {
		t.Fatalf("expected 1 delta, got %d", len(deltas))
	}
	d := deltas[0]
	if d.Asset != "X" || d.Action != notifier.ActionSell || d.PercentChange != 100 || d.New != 0 {
		t.Errorf("expected full SELL of X, got %+v", d)
	}
}

func TestDiff_NoChanges(t *testing.T) {
	tests := []struct {
		name string
		old  Holdings
		new  Holdings
	}{
		{"identical", Holdings{"X": 1, "SOL": 2}, Holdings{"X": 1, "SOL": 2}},
		{"both empty", Holdings{}, Holdings{}},
		{"below epsilon", Holdings{"X": 1}, Holdings{"X": 1 + 1e-12}},
		{"zero entry vanishes", Holdings{"X": 0}, Holdings{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if deltas := Diff("W", tt.old, tt.new); len(deltas) != 0 {
				t.Errorf("expected no deltas, got %+v", deltas)
			}
		})
	}
}

func TestDiff_Order(t *testing.T) {
	deltas := Diff("W",
		Holdings{"gone-b": 1, "gone-a": 1, "kept": 1},
		Holdings{"new-z": 1, "kept": 2, "new-a": 1},
	)

	want := []string{"kept", "new-a", "new-z", "gone-a", "gone-b"}
	if len(deltas) != len(want) {
		t.Fatalf("expected %d deltas, got %d", len(want), len(deltas))
	}
	for i, asset := range want {
		if deltas[i].Asset != asset {
			t.Errorf("delta %d: expected %s, got %s", i, asset, deltas[i].Asset)
		}
	}
}

func TestBalanceDelta_Message(t *testing.T) {
	tests := []struct {
		name  string
		delta BalanceDelta
		want  string
	}{
		{
			name:  "new holding",
			delta: Diff("W", Holdings{}, Holdings{"X": 7.12345})[0],
			want:  "Wallet W bought: X, New Balance: 7.123 (New holding: 100%)",
		},
		{
			name:  "buy",
			delta: Diff("W", Holdings{"X": 10}, Holdings{"X": 12.5})[0],
			want:  "Wallet W bought: X, Old Balance: 10.0, New Balance: 12.5 (+25.0%)",
		},
		{
			name:  "sell",
			delta: Diff("W", Holdings{"X": 3}, Holdings{"X": 1})[0],
			want:  "Wallet W sold: X, Old Balance: 3.0, New Balance: 1.0 (-66.67%)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.delta.Message(); got != tt.want {
				t.Errorf("Message() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		v      float64
		places int
		want   string
	}{
		{100, 2, "100.0"},
		{0, 3, "0.0"},
		{7.12345, 3, "7.123"},
		{66.6666, 2, "66.67"},
		{12.5, 3, "12.5"},
		{4.9999, 3, "5.0"},
	}

	for _, tt := range tests {
		if got := formatAmount(tt.v, tt.places); got != tt.want {
			t.Errorf("formatAmount(%v, %d) = %s, want %s", tt.v, tt.places, got, tt.want)
		}
	}
}
