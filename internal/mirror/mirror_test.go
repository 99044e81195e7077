package mirror

import "testing"

func TestPutGetDelete(t *testing.T) {
	m := New()
	if _, ok := m.Get("form-1"); ok {
		t.Fatalf("empty mirror returned an entry")
	}
	m.Put("form-1", []string{"Listeria", "Salmonella"})
	got, ok := m.Get("form-1")
	if !ok || len(got) != 2 {
		t.Fatalf("get = %v %v", got, ok)
	}
	m.Delete("form-1")
	if _, ok := m.Get("form-1"); ok {
		t.Fatalf("entry survived delete")
	}
}

func TestGetReturnsCopy(t *testing.T) {
	m := New()
	m.Put("form-1", []string{"Listeria"})
	got, _ := m.Get("form-1")
	got[0] = "mutated"
	again, _ := m.Get("form-1")
	if again[0] != "Listeria" {
		t.Fatalf("mirror entry mutated through a returned slice")
	}
}
