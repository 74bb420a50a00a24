package realtime

import (
	"errors"
	"testing"
)

func TestObtainCoalescesIdenticalCommands(t *testing.T) {
	table := newRequestTable(noopLogger{})
	id := testIdentity()

	first, created := table.obtain(CommandBind, id, nil)
	if !created {
		t.Fatal("first obtain should create the record")
	}
	second, created := table.obtain(CommandBind, id, nil)
	if created {
		t.Error("identical command created a second record")
	}
	if first != second {
		t.Error("identical command returned a different record")
	}

	// A different verb for the same identity is a separate request.
	unbind, created := table.obtain(CommandUnbind, id, nil)
	if !created || unbind == first {
		t.Error("different verb should create a distinct record")
	}
	if unbind.id <= first.id {
		t.Errorf("ids not monotonic: %d then %d", first.id, unbind.id)
	}
}

func TestResolveCompletesAndRemoves(t *testing.T) {
	table := newRequestTable(noopLogger{})
	p, _ := table.obtain(CommandExec, testIdentity(), []any{1})

	if !table.resolveID(p.id, "ok") {
		t.Fatal("resolveID did not find the pending record")
	}
	select {
	case <-p.done:
	default:
		t.Fatal("record not completed")
	}
	if p.value != "ok" || p.err != nil {
		t.Errorf("outcome = %v, %v", p.value, p.err)
	}

	// Removed: the same id resolves nothing, and the key is free again.
	if table.resolveID(p.id, "again") {
		t.Error("resolved a removed record")
	}
	if _, created := table.obtain(CommandExec, testIdentity(), nil); !created {
		t.Error("dedup key not released after resolution")
	}
}

func TestRejectCarriesProtocolError(t *testing.T) {
	table := newRequestTable(noopLogger{})
	p, _ := table.obtain(CommandBind, testIdentity(), nil)
	other, _ := table.obtain(CommandExec, testIdentity(), nil)

	rerr := &Error{Code: CodeAccessDenied, Message: "denied", ID: p.id}
	if !table.rejectID(p.id, rerr) {
		t.Fatal("rejectID did not find the pending record")
	}

	var got *Error
	if !errors.As(p.err, &got) || got.Code != CodeAccessDenied {
		t.Errorf("err = %v, want access denied", p.err)
	}

	// Unrelated requests stay pending.
	select {
	case <-other.done:
		t.Error("unrelated record completed by reject")
	default:
	}
}

func TestUnknownIDIsNoop(t *testing.T) {
	table := newRequestTable(noopLogger{})
	if table.resolveID(99, nil) {
		t.Error("resolved a request that never existed")
	}
	if table.rejectID(99, errors.New("boom")) {
		t.Error("rejected a request that never existed")
	}
}

func TestClearDropsWithoutResolving(t *testing.T) {
	table := newRequestTable(noopLogger{})
	p, _ := table.obtain(CommandBind, testIdentity(), nil)

	table.clear()

	select {
	case <-p.done:
		t.Error("clear resolved a pending record")
	default:
	}
	if table.resolveID(p.id, nil) {
		t.Error("record survived clear")
	}
	// The id counter keeps climbing across clear.
	next, _ := table.obtain(CommandBind, testIdentity(), nil)
	if next.id <= p.id {
		t.Errorf("id %d not monotonic after clear (previous %d)", next.id, p.id)
	}
}
