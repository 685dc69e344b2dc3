package domain

import "testing"

func TestUserCanTrade(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		isActive      bool
		isSelfTrading bool
		status        string
		want          bool
	}{
		{"fully eligible", true, true, "active", true},
		{"inactive account", false, true, "active", false},
		{"not self trading", true, false, "active", false},
		{"suspended status", true, true, "suspended", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			u := &User{IsActive: tt.isActive, IsSelfTrading: tt.isSelfTrading, Status: tt.status}
			if got := u.CanTrade(); got != tt.want {
				t.Errorf("CanTrade() = %v, want %v", got, tt.want)
			}
		})
	}
}
