package core

import (
	"reflect"
	"testing"
)

func TestURLKey(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"shop.example", "shop.example"},
		{"https://shop.example", "shop.example"},
		{"HTTP://WWW.Shop.Example/", "shop.example"},
		{"  shop.example/  ", "shop.example"},
		{"https://shop.example/store/Main?ref=ad#top", "shop.example/store/main"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := URLKey(tt.input); got != tt.want {
			t.Errorf("URLKey(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestPhoneKey(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"+966 55 123 4567", "966551234567"},
		{"(055) 123-4567", "0551234567"},
		{"", ""},
		{"n/a", ""},
	}

	for _, tt := range tests {
		if got := PhoneKey(tt.input); got != tt.want {
			t.Errorf("PhoneKey(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestStoreRecord_Keys(t *testing.T) {
	r := StoreRecord{
		StoreURL:   "https://www.Shop.example/",
		OwnerPhone: "+966551234567",
		OwnerEmail: " Owner@Shop.Example ",
	}

	want := DedupKeys{URL: "shop.example", Phone: "966551234567", Email: "owner@shop.example"}
	if got := r.Keys(); got != want {
		t.Errorf("Keys() = %+v, want %+v", got, want)
	}
}

func TestStoreRecord_GetSet(t *testing.T) {
	var r StoreRecord
	for i, col := range Columns {
		r.Set(col, col+"-value")
		if got := r.Get(col); got != col+"-value" {
			t.Errorf("column %d %s: Get() = %q", i, col, got)
		}
	}

	r.Set("unknown", "x")
	if got := r.Get("unknown"); got != "" {
		t.Errorf("Get(unknown) = %q, want empty", got)
	}

	values := r.Values()
	if len(values) != len(Columns) {
		t.Fatalf("Values() len = %d, want %d", len(values), len(Columns))
	}
	if values[0] != "store_url-value" || values[len(values)-1] != "contact_date-value" {
		t.Errorf("Values() not in template order: %v", values)
	}
}

func TestStoreRecord_IsEmpty(t *testing.T) {
	var r StoreRecord
	if !r.IsEmpty() {
		t.Error("zero record should be empty")
	}
	r.Notes = "x"
	if r.IsEmpty() {
		t.Error("record with notes should not be empty")
	}
}

func TestColumnsMatchStructFields(t *testing.T) {
	typ := reflect.TypeOf(StoreRecord{})
	if typ.NumField() != len(Columns) {
		t.Fatalf("StoreRecord has %d fields, Columns has %d", typ.NumField(), len(Columns))
	}
	for i := 0; i < typ.NumField(); i++ {
		if tag := typ.Field(i).Tag.Get("json"); tag != Columns[i] {
			t.Errorf("field %d json tag = %q, want %q", i, tag, Columns[i])
		}
	}
}
