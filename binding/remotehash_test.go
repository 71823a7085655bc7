package binding

import "testing"

func TestRemoteHashAddAndFind(t *testing.T) {
	h := NewRemoteHashTable()
	c := newTestConn(t)
	if collision := h.Add("1.2.3.4:443", []byte{1, 2}, c); collision != nil {
		t.Fatalf("Add returned unexpected collision: %v", collision)
	}
	got, ok := h.Find("1.2.3.4:443", []byte{1, 2})
	if !ok || got != c {
		t.Fatalf("Find = (%v, %v), want (%v, true)", got, ok, c)
	}
}

func TestRemoteHashAddReturnsPreviousOnCollision(t *testing.T) {
	h := NewRemoteHashTable()
	a, b := newTestConn(t), newTestConn(t)
	h.Add("1.2.3.4:443", []byte{1}, a)
	prev := h.Add("1.2.3.4:443", []byte{1}, b)
	if prev != a {
		t.Fatalf("Add collision return = %v, want %v", prev, a)
	}
	got, _ := h.Find("1.2.3.4:443", []byte{1})
	if got != b {
		t.Fatalf("second Add should overwrite the entry; Find = %v, want %v", got, b)
	}
}

func TestRemoteHashRemove(t *testing.T) {
	h := NewRemoteHashTable()
	c := newTestConn(t)
	h.Add("1.2.3.4:443", []byte{1}, c)
	h.Remove("1.2.3.4:443", []byte{1})
	if _, ok := h.Find("1.2.3.4:443", []byte{1}); ok {
		t.Error("Find should fail after Remove")
	}
}

func TestRemoteHashDistinguishesByAddress(t *testing.T) {
	h := NewRemoteHashTable()
	a, b := newTestConn(t), newTestConn(t)
	h.Add("1.2.3.4:443", []byte{1}, a)
	h.Add("5.6.7.8:443", []byte{1}, b)
	gotA, _ := h.Find("1.2.3.4:443", []byte{1})
	gotB, _ := h.Find("5.6.7.8:443", []byte{1})
	if gotA != a || gotB != b {
		t.Error("entries with the same CID but different remote addresses should not collide")
	}
}
