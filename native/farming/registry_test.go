package farming

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"yieldfarm/core/events"
)

func Test_CreatePool_Validation(t *testing.T) {
	h := newHarness(t)

	if _, err := h.registry.CreatePool(h.admin, "  ", big.NewInt(1), 100, PoolSalt); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if _, err := h.registry.CreatePool(h.admin, "FARM", big.NewInt(0), 100, PoolSalt); !errors.Is(err, ErrZeroRate) {
		t.Fatalf("expected ErrZeroRate, got %v", err)
	}
	if _, err := h.registry.CreatePool(h.admin, "FARM", nil, 100, PoolSalt); !errors.Is(err, ErrZeroRate) {
		t.Fatalf("expected ErrZeroRate on nil rate, got %v", err)
	}
	if _, err := h.registry.CreatePool(testAddress(0x01), "FARM", big.NewInt(1), 100, PoolSalt); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func Test_RejectsOverWideRewardRate(t *testing.T) {
	h := newHarness(t)
	wide := new(big.Int).Lsh(big.NewInt(1), 300)

	if _, err := h.registry.CreatePool(h.admin, "FARM", wide, 100, PoolSalt); !errors.Is(err, ErrRateTooLarge) {
		t.Fatalf("expected ErrRateTooLarge, got %v", err)
	}
	id := h.createPool(t, big.NewInt(1), 100)
	if err := h.registry.UpdateRewardRate(h.admin, id, wide, 200); !errors.Is(err, ErrRateTooLarge) {
		t.Fatalf("expected ErrRateTooLarge on update, got %v", err)
	}
	// Exactly 256 bits still fits the packed field.
	boundary := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	if _, err := h.registry.CreatePool(h.admin, "FARM", boundary, 101, PoolSalt); err != nil {
		t.Fatalf("boundary rate rejected: %v", err)
	}
}

func Test_CreatePool_DeterministicCollision(t *testing.T) {
	h := newHarness(t)

	first, err := h.registry.CreatePool(h.admin, "FARM", big.NewInt(5), 1_000, PoolSalt)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := h.registry.CreatePool(h.admin, "FARM", big.NewInt(5), 1_000, PoolSalt); !errors.Is(err, ErrPoolExists) {
		t.Fatalf("expected ErrPoolExists on identical inputs, got %v", err)
	}

	// One second later the same parameters derive a distinct identifier.
	second, err := h.registry.CreatePool(h.admin, "FARM", big.NewInt(5), 1_001, PoolSalt)
	if err != nil {
		t.Fatalf("retry after time advance: %v", err)
	}
	if bytes.Equal(first[:], second[:]) {
		t.Fatalf("identifiers should differ across timestamps")
	}
}

func Test_CreatePool_InitialStateAndEvent(t *testing.T) {
	h := newHarness(t)

	id, err := h.registry.CreatePool(h.admin, "farm", big.NewInt(9), 2_000, PoolSalt)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	pool, err := h.registry.GetPool(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if pool.StakeToken != "FARM" {
		t.Fatalf("token not normalised: %q", pool.StakeToken)
	}
	if pool.TotalStaked.Sign() != 0 || pool.AccRewardPerShare.Sign() != 0 {
		t.Fatalf("fresh pool carries balances: staked=%s acc=%s", pool.TotalStaked, pool.AccRewardPerShare)
	}
	if pool.LastUpdate != 2_000 || !pool.Active {
		t.Fatalf("unexpected init: lastUpdate=%d active=%v", pool.LastUpdate, pool.Active)
	}
	if created := h.emitter.byType(events.TypePoolCreated); len(created) != 1 {
		t.Fatalf("expected one PoolCreated event, got %d", len(created))
	}
}

func Test_ListActivePools_CreationOrder(t *testing.T) {
	h := newHarness(t)

	var want []PoolID
	for i := uint64(0); i < 4; i++ {
		id, err := h.registry.CreatePool(h.admin, "FARM", big.NewInt(3), 1_000+i, PoolSalt)
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		want = append(want, id)
	}

	got, err := h.registry.ListActivePools()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order mismatch at %d: got %s want %s", i, got[i], want[i])
		}
	}
	count, err := h.registry.CountActivePools()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != len(want) {
		t.Fatalf("count mismatch: got %d want %d", count, len(want))
	}
}

func Test_UpdateRewardRate_SettlesBeforeRateChange(t *testing.T) {
	h := newHarness(t)
	id := h.createPool(t, scaled(1), 1_000)
	user := testAddress(0x01)
	h.fund(user, scaled(10))
	if err := h.engine.Stake(user, id, scaled(10), 1_000); err != nil {
		t.Fatalf("stake: %v", err)
	}

	// 100 seconds accrue at the old rate before the raise takes effect.
	if err := h.registry.UpdateRewardRate(h.admin, id, scaled(3), 1_100); err != nil {
		t.Fatalf("update: %v", err)
	}
	pending, err := h.engine.PendingRewards(id, user, 1_200)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	// 100s * 1/s + 100s * 3/s.
	want := scaled(400)
	if pending.Cmp(want) != 0 {
		t.Fatalf("rate change applied retroactively: got %s want %s", pending, want)
	}
}

func Test_UpdateRewardRate_Guards(t *testing.T) {
	h := newHarness(t)
	id := h.createPool(t, big.NewInt(2), 500)

	if err := h.registry.UpdateRewardRate(testAddress(0x01), id, big.NewInt(3), 600); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := h.registry.UpdateRewardRate(h.admin, PoolID{0xFF}, big.NewInt(3), 600); !errors.Is(err, ErrPoolInactive) {
		t.Fatalf("expected ErrPoolInactive for unknown pool, got %v", err)
	}
	if err := h.registry.UpdateRewardRate(h.admin, id, big.NewInt(0), 600); !errors.Is(err, ErrZeroRate) {
		t.Fatalf("expected ErrZeroRate, got %v", err)
	}
}

func Test_TransferAuthority(t *testing.T) {
	h := newHarness(t)
	next := testAddress(0x77)

	if err := h.registry.TransferAuthority(next, next); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-holder, got %v", err)
	}
	if err := h.registry.TransferAuthority(h.admin, next); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if transferred := h.emitter.byType(events.TypeAuthorityTransferred); len(transferred) != 1 {
		t.Fatalf("expected one transfer event, got %d", len(transferred))
	}

	// The previous holder loses registry access; the new holder gains it.
	if _, err := h.registry.CreatePool(h.admin, "FARM", big.NewInt(1), 100, PoolSalt); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("old holder still authorized: %v", err)
	}
	if _, err := h.registry.CreatePool(next, "FARM", big.NewInt(1), 100, PoolSalt); err != nil {
		t.Fatalf("new holder rejected: %v", err)
	}
}

func Test_Snapshot_Deterministic(t *testing.T) {
	h := newHarness(t)
	id := h.createPool(t, big.NewInt(7), 3_000)

	first, err := h.registry.Snapshot(id)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	second, err := h.registry.Snapshot(id)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("snapshot not deterministic")
	}
	if !bytes.HasPrefix(first, id[:]) {
		t.Fatalf("snapshot must begin with the pool id")
	}
	// id(32) + len(2) + "FARM"(4) + staked(32) + rate(32) + ts(8) + acc(32) + active(1)
	if len(first) != 32+2+4+32+32+8+32+1 {
		t.Fatalf("unexpected snapshot length: %d", len(first))
	}
	if first[len(first)-1] != 1 {
		t.Fatalf("active flag not packed")
	}

	if _, err := h.registry.Snapshot(PoolID{0xFF}); !errors.Is(err, ErrPoolNotFound) {
		t.Fatalf("expected ErrPoolNotFound, got %v", err)
	}
}

func Test_Snapshot_TruncatesOverWideAccumulator(t *testing.T) {
	pool := newTestPool(1, big.NewInt(10), 0)
	pool.AccRewardPerShare = new(big.Int).Lsh(big.NewInt(1), 300)

	encoded := pool.Snapshot()
	if len(encoded) != 32+2+4+32+32+8+32+1 {
		t.Fatalf("unexpected snapshot length: %d", len(encoded))
	}
}

func Test_UserHash_Stable(t *testing.T) {
	user := testAddress(0x42)
	pool := PoolID{0x11}

	first := UserHash(user, pool)
	second := UserHash(user, pool)
	if first != second {
		t.Fatalf("user hash not stable")
	}
	if first == UserHash(user, PoolID{0x12}) {
		t.Fatalf("user hash must differ across pools")
	}
}
