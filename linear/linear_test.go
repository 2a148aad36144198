// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package linear

import "testing"

func TestV3(t *testing.T) {
	var v, l, r V3
	l, r = V3{1, 2, 3}, V3{4, 5, 6}

	v.Add(&l, &r)
	if v != (V3{5, 7, 9}) {
		t.Fatalf("V3.Add: got %v", v)
	}

	v.Sub(&r, &l)
	if v != (V3{3, 3, 3}) {
		t.Fatalf("V3.Sub: got %v", v)
	}

	v.Scale(2, &l)
	if v != (V3{2, 4, 6}) {
		t.Fatalf("V3.Scale: got %v", v)
	}

	if d := l.Dot(&r); d != 32 {
		t.Fatalf("V3.Dot: got %v, want 32", d)
	}

	u := V3{3, 4, 0}
	if ln := u.Len(); ln != 5 {
		t.Fatalf("V3.Len: got %v, want 5", ln)
	}

	v.Norm(&u)
	if v != (V3{0.6, 0.8, 0}) {
		t.Fatalf("V3.Norm: got %v", v)
	}

	x, y := V3{1, 0, 0}, V3{0, 1, 0}
	v.Cross(&x, &y)
	if v != (V3{0, 0, 1}) {
		t.Fatalf("V3.Cross: got %v", v)
	}
}

func TestM4Identity(t *testing.T) {
	var m M4
	m.I()
	for i := range m {
		for j := range m[i] {
			want := float32(0)
			if i == j {
				want = 1
			}
			if m[i][j] != want {
				t.Fatalf("M4.I: m[%d][%d] = %v, want %v", i, j, m[i][j], want)
			}
		}
	}
}

func TestM4MulIdentity(t *testing.T) {
	var id, n, m M4
	id.I()
	n = M4{
		{1, 2, 3, 4},
		{5, 6, 7, 8},
		{9, 10, 11, 12},
		{13, 14, 15, 16},
	}
	m.Mul(&n, &id)
	if m != n {
		t.Fatalf("M4.Mul by identity: got %v, want %v", m, n)
	}
}

func TestM4TransposeInvolution(t *testing.T) {
	n := M4{
		{1, 2, 3, 4},
		{5, 6, 7, 8},
		{9, 10, 11, 12},
		{13, 14, 15, 16},
	}
	var t1, t2 M4
	t1.Transpose(&n)
	t2.Transpose(&t1)
	if t2 != n {
		t.Fatalf("M4.Transpose twice: got %v, want %v", t2, n)
	}
}

func TestM4InvertIdentity(t *testing.T) {
	var id, inv M4
	id.I()
	inv.Invert(&id)
	if inv != id {
		t.Fatalf("M4.Invert of identity: got %v, want %v", inv, id)
	}
}

func TestM4Row(t *testing.T) {
	n := M4{
		{1, 2, 3, 4},
		{5, 6, 7, 8},
		{9, 10, 11, 12},
		{13, 14, 15, 16},
	}
	if r := n.Row(2); r != (V3{3, 7, 11}) {
		t.Fatalf("M4.Row(2): got %v, want {3 7 11}", r)
	}
}
