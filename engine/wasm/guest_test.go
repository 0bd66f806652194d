package wasm

// A minimal guest written directly in the binary format. It implements
// the engine exports just far enough to exercise the host side: np_send
// forwards every message to np_host.receive and np_use_identity asks
// np_host.authorize before accepting a token.

const (
	i32 byte = 0x7f
	f64 byte = 0x7c
)

type guestImport struct {
	module, name    string
	params, results []byte
}

type guestFunc struct {
	name            string
	params, results []byte
	body            []byte
}

func uleb(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

func sleb(v int32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func name(s string) []byte {
	return append(uleb(uint32(len(s))), s...)
}

func section(id byte, count int, items ...[]byte) []byte {
	content := uleb(uint32(count))
	for _, it := range items {
		content = append(content, it...)
	}
	return append(append([]byte{id}, uleb(uint32(len(content)))...), content...)
}

func vec(b []byte) []byte {
	return append(uleb(uint32(len(b))), b...)
}

func buildGuest(imports []guestImport, funcs []guestFunc) []byte {
	var types [][]byte
	typeIdx := map[string]uint32{}
	typeOf := func(params, results []byte) uint32 {
		key := string(params) + "|" + string(results)
		if idx, ok := typeIdx[key]; ok {
			return idx
		}
		idx := uint32(len(types))
		typeIdx[key] = idx
		types = append(types, append(append([]byte{0x60}, vec(params)...), vec(results)...))
		return idx
	}

	var importItems [][]byte
	for _, im := range imports {
		item := append(name(im.module), name(im.name)...)
		item = append(item, 0x00)
		item = append(item, uleb(typeOf(im.params, im.results))...)
		importItems = append(importItems, item)
	}

	var funcItems, exportItems, codeItems [][]byte
	for i, f := range funcs {
		funcItems = append(funcItems, uleb(typeOf(f.params, f.results)))

		idx := uint32(len(imports) + i)
		exportItems = append(exportItems, append(append(name(f.name), 0x00), uleb(idx)...))

		body := append([]byte{0x00}, f.body...)
		codeItems = append(codeItems, vec(body))
	}
	exportItems = append(exportItems, append(append(name("memory"), 0x02), 0x00))

	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	out = append(out, section(1, len(types), types...)...)
	out = append(out, section(2, len(importItems), importItems...)...)
	out = append(out, section(3, len(funcItems), funcItems...)...)
	out = append(out, section(5, 1, []byte{0x00, 0x01})...)
	global := append([]byte{i32, 0x01, 0x41}, sleb(heapBase)...)
	out = append(out, section(6, 1, append(global, 0x0b))...)
	out = append(out, section(7, len(exportItems), exportItems...)...)
	out = append(out, section(10, len(codeItems), codeItems...)...)
	return out
}

// Instructions.
var (
	drop   = []byte{0x1a}
	eqz    = []byte{0x45}
	ifI32  = []byte{0x04, i32}
	elseOp = []byte{0x05}
	end    = []byte{0x0b}
)

func constI32(v int32) []byte      { return append([]byte{0x41}, sleb(v)...) }
func localGet(i uint32) []byte     { return append([]byte{0x20}, uleb(i)...) }
func globalGet(i uint32) []byte    { return append([]byte{0x23}, uleb(i)...) }
func globalSet(i uint32) []byte    { return append([]byte{0x24}, uleb(i)...) }
func call(i uint32) []byte         { return append([]byte{0x10}, uleb(i)...) }
func store(offset uint32) []byte   { return append([]byte{0x36, 0x02}, uleb(offset)...) }
func store16(offset uint32) []byte { return append([]byte{0x3b, 0x01}, uleb(offset)...) }
func store8(offset uint32) []byte  { return append([]byte{0x3a, 0x00}, uleb(offset)...) }

func code(parts ...[]byte) []byte {
	var b []byte
	for _, p := range parts {
		b = append(b, p...)
	}
	return append(b, 0x0b)
}

const (
	heapBase     = 4096
	messageSlot  = 1024
	guestHandle  = 16
	deniedStatus = 5
)

func ret(v int32) []byte { return code(constI32(v)) }

// testGuest returns the stub engine guest.
func testGuest() []byte {
	imports := []guestImport{
		{HostModule, "receive", []byte{i32, i32}, []byte{i32}},
		{HostModule, "authorize", []byte{i32, i32}, []byte{i32}},
	}
	const (
		hostReceive = iota
		hostAuthorize
	)

	funcs := []guestFunc{
		// Bump allocator over global 0; returns the old top.
		{"np_alloc", []byte{i32}, []byte{i32}, code(
			globalGet(0), globalGet(0), localGet(0), []byte{0x6a}, globalSet(0),
		)},
		{"np_free", []byte{i32, i32}, nil, code()},
		{"np_default_settings", []byte{i32}, nil, code(
			localGet(0), constI32(3), store(0),
			localGet(0), constI32(512), store16(10),
		)},
		{"np_new_context", []byte{i32}, []byte{i32}, ret(guestHandle)},
		{"np_destroy", []byte{i32, i32}, []byte{i32}, ret(0)},
		{"np_listen", []byte{i32, i32, i32, i32, i32, i32}, []byte{i32}, ret(0)},
		{"np_join", []byte{i32, i32, i32}, []byte{i32}, ret(0)},
		{"np_run", []byte{i32, f64}, []byte{i32}, ret(0)},
		{"np_send", []byte{i32, i32, i32, i32, i32}, []byte{i32}, code(
			constI32(messageSlot), localGet(1), store(16),
			constI32(messageSlot), localGet(2), store(20),
			constI32(messageSlot), localGet(3), store(24),
			constI32(messageSlot), localGet(4), store(28),
			localGet(0), constI32(messageSlot), call(hostReceive), drop,
			constI32(0),
		)},
		{"np_new_identity", []byte{i32, f64, i32, i32, i32}, []byte{i32}, ret(2)},
		{"np_use_identity", []byte{i32, i32}, []byte{i32}, code(
			localGet(0), localGet(1), call(hostAuthorize), eqz,
			ifI32, constI32(deniedStatus), elseOp, constI32(0), end,
		)},
		{"np_get_mx_properties", []byte{i32, i32, i32, i32}, []byte{i32}, code(
			localGet(3), constI32(5), store8(4),
			constI32(0),
		)},
		{"np_set_mx_properties", []byte{i32, i32, i32, i32}, []byte{i32}, ret(0)},
		{"np_has_joined", []byte{i32}, []byte{i32}, ret(1)},
		{"np_get_status", []byte{i32}, []byte{i32}, ret(2)},
		{"np_add_receive_cb", []byte{i32, i32, i32}, []byte{i32}, ret(0)},
		{"np_set_authenticate_cb", []byte{i32}, []byte{i32}, ret(0)},
		{"np_set_authorize_cb", []byte{i32}, []byte{i32}, ret(0)},
		{"np_set_accounting_cb", []byte{i32}, []byte{i32}, ret(0)},
	}
	return buildGuest(imports, funcs)
}
