package section

import (
	"sync"
	"testing"

	"github.com/deepnoodle-ai/dexasm/cst"
	"github.com/deepnoodle-ai/dexasm/errz"
	"github.com/stretchr/testify/require"
)

func requireInvariant(t *testing.T, msg string, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected panic")
		err, ok := r.(*errz.AssemblyError)
		require.True(t, ok)
		require.Equal(t, errz.ErrInvariant, err.Kind)
		require.Contains(t, err.Message, msg)
	}()
	fn()
}

func newStrings() *Section[string] {
	return New("strings", func(a, b string) bool { return CompareStrings(a, b) < 0 })
}

func TestInternReturnsSameHandle(t *testing.T) {
	s := newStrings()
	a := s.Intern("hello")
	b := s.Intern("hello")
	require.Same(t, a, b)
	require.Equal(t, 1, s.Len())
}

func TestIndexOfBeforePrepare(t *testing.T) {
	s := newStrings()
	s.Intern("hello")
	requireInvariant(t, "not prepared", func() { s.IndexOf("hello") })
	it := s.Intern("hello")
	requireInvariant(t, "not prepared", func() { it.Index() })
}

func TestInternAfterPrepare(t *testing.T) {
	s := newStrings()
	s.Intern("a")
	s.Prepare()
	requireInvariant(t, "already prepared", func() { s.Intern("b") })
	requireInvariant(t, "not found", func() { s.IndexOf("b") })
}

func TestDeterministicOrder(t *testing.T) {
	values := []string{"zebra", "apple", "Mango", "", "apple pie", "éclair"}
	var orders [][]string
	for _, perm := range [][]int{{0, 1, 2, 3, 4, 5}, {5, 4, 3, 2, 1, 0}, {2, 0, 5, 1, 3, 4}} {
		s := newStrings()
		for _, i := range perm {
			s.Intern(values[i])
		}
		s.Prepare()
		orders = append(orders, s.Values())
	}
	require.Equal(t, []string{"", "Mango", "apple", "apple pie", "zebra", "éclair"}, orders[0])
	require.Equal(t, orders[0], orders[1])
	require.Equal(t, orders[0], orders[2])
}

func TestCompareStringsUTF16(t *testing.T) {
	// U+FFFF sorts after a supplementary character in UTF-16 (surrogates
	// are 0xD800-0xDFFF) even though it is the smaller code point.
	require.Equal(t, 1, CompareStrings("\uffff", "\U00010000"))
	require.Equal(t, -1, CompareStrings("a", "ab"))
	require.Equal(t, 0, CompareStrings("same", "same"))
	require.Equal(t, -1, CompareStrings("A", "a"))
}

func TestConcurrentIntern(t *testing.T) {
	s := newStrings()
	var wg sync.WaitGroup
	handles := make([]*Item[string], 16)
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i] = s.Intern("shared")
		}(i)
	}
	wg.Wait()
	for _, h := range handles {
		require.Same(t, handles[0], h)
	}
	s.Prepare()
	require.Equal(t, 0, s.IndexOf("shared"))
}

func TestPoolDependencies(t *testing.T) {
	p := NewPool()
	m := cst.MethodRef{Class: "LFoo;", Name: "bar", Proto: "(IJ)Ljava/lang/String;"}
	p.Intern(m)
	p.Intern(cst.FieldRef{Class: "LFoo;", Name: "count", Type: cst.Int})
	p.Prepare()

	require.Equal(t, 0, p.IndexOf(m))
	require.Equal(t, []cst.Type{"I", "J", "LFoo;", "Ljava/lang/String;"}, p.Types.Values())
	require.Equal(t, []string{"I", "J", "LFoo;", "LIJ", "Ljava/lang/String;", "bar", "count"}, p.Strings.Values())
	require.Equal(t, 2, p.IndexOf(cst.Type("LFoo;")))
	require.Equal(t, 5, p.IndexOf(cst.String("bar")))

	_, ok := p.Find(cst.String("this"))
	require.False(t, ok)
}

func TestProtoOrder(t *testing.T) {
	p := NewPool()
	for _, proto := range []cst.Proto{"(J)V", "()V", "(I)V", "(II)V", "()I"} {
		p.Intern(proto)
	}
	p.Prepare()
	require.Equal(t, []cst.Proto{"()I", "()V", "(I)V", "(II)V", "(J)V"}, p.Protos.Values())
}
