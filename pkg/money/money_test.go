package money

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsNegative(t *testing.T) {
	_, err := New(-1, "INR")
	assert.ErrorIs(t, err, ErrNegativeAmount)
}

func TestNew_RejectsBadCurrency(t *testing.T) {
	_, err := New(100, "")
	assert.ErrorIs(t, err, ErrInvalidCurrency)

	_, err = New(100, "RUPEES")
	assert.ErrorIs(t, err, ErrInvalidCurrency)
}

func TestNewSigned_AllowsNegative(t *testing.T) {
	m, err := NewSigned(-500, "INR")
	require.NoError(t, err)
	assert.Equal(t, int64(-500), m.MinorUnits())
	assert.True(t, m.IsNegative())
}

func TestAdd(t *testing.T) {
	a, _ := New(150, "INR")
	b, _ := New(250, "INR")

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, int64(400), sum.MinorUnits())
	assert.Equal(t, "INR", sum.Currency())
}

func TestAdd_CurrencyMismatch(t *testing.T) {
	a, _ := New(150, "INR")
	b, _ := New(250, "USD")

	_, err := a.Add(b)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
}

func TestSub_CurrencyMismatch(t *testing.T) {
	a, _ := New(150, "INR")
	b, _ := New(50, "EUR")

	_, err := a.Sub(b)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
}

func TestSub_CanGoNegative(t *testing.T) {
	a, _ := New(100, "INR")
	b, _ := New(250, "INR")

	diff, err := a.Sub(b)
	require.NoError(t, err)
	assert.Equal(t, int64(-150), diff.MinorUnits())
}

func TestNegateAbs(t *testing.T) {
	m, _ := New(4200, "INR")
	assert.Equal(t, int64(-4200), m.Negate().MinorUnits())
	assert.Equal(t, int64(4200), m.Negate().Abs().MinorUnits())
}

func TestCmp(t *testing.T) {
	a, _ := New(100, "INR")
	b, _ := New(200, "INR")

	c, err := a.Cmp(b)
	require.NoError(t, err)
	assert.Equal(t, -1, c)

	c, err = b.Cmp(a)
	require.NoError(t, err)
	assert.Equal(t, 1, c)

	c, err = a.Cmp(a)
	require.NoError(t, err)
	assert.Equal(t, 0, c)
}

func TestString(t *testing.T) {
	m, _ := New(123450, "INR")
	assert.Equal(t, "1234.50 INR", m.String())

	n, _ := NewSigned(-5, "INR")
	assert.Equal(t, "-0.05 INR", n.String())
}

func TestAllocate_EqualThreeWay(t *testing.T) {
	// 100.00 split three ways: remainder cent goes to the lowest index.
	total, _ := New(10000, "INR")

	shares, err := total.Allocate([]int64{1, 1, 1})
	require.NoError(t, err)
	require.Len(t, shares, 3)

	assert.Equal(t, int64(3334), shares[0].MinorUnits())
	assert.Equal(t, int64(3333), shares[1].MinorUnits())
	assert.Equal(t, int64(3333), shares[2].MinorUnits())
}

func TestAllocate_SumsExactly(t *testing.T) {
	cases := []struct {
		name    string
		total   int64
		weights []int64
	}{
		{"two equal", 101, []int64{1, 1}},
		{"prime total", 997, []int64{3, 5, 7}},
		{"skewed weights", 10000, []int64{1, 99}},
		{"zero weight bucket", 500, []int64{0, 1, 1}},
		{"single bucket", 12345, []int64{7}},
		{"large weights", 99999, []int64{1000000007, 998244353, 1}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			total, err := New(tc.total, "INR")
			require.NoError(t, err)

			shares, err := total.Allocate(tc.weights)
			require.NoError(t, err)
			require.Len(t, shares, len(tc.weights))

			var sum int64
			for _, s := range shares {
				assert.GreaterOrEqual(t, s.MinorUnits(), int64(0))
				sum += s.MinorUnits()
			}
			assert.Equal(t, tc.total, sum)
		})
	}
}

func TestAllocate_LargestRemainderOrder(t *testing.T) {
	// 10 units across weights 1,2,4: exact shares 1.43, 2.86, 5.71.
	// Floors are 1,2,5 leaving 2 units for the two largest remainders
	// (index 1 with .86 and index 2 with .71).
	total, _ := New(10, "INR")

	shares, err := total.Allocate([]int64{1, 2, 4})
	require.NoError(t, err)

	assert.Equal(t, int64(1), shares[0].MinorUnits())
	assert.Equal(t, int64(3), shares[1].MinorUnits())
	assert.Equal(t, int64(6), shares[2].MinorUnits())
}

func TestAllocate_InvalidWeights(t *testing.T) {
	total, _ := New(100, "INR")

	_, err := total.Allocate(nil)
	assert.ErrorIs(t, err, ErrInvalidWeights)

	_, err = total.Allocate([]int64{0, 0})
	assert.ErrorIs(t, err, ErrInvalidWeights)

	_, err = total.Allocate([]int64{1, -1})
	assert.ErrorIs(t, err, ErrInvalidWeights)
}

func TestAllocate_NegativeTotal(t *testing.T) {
	m, _ := NewSigned(-100, "INR")
	_, err := m.Allocate([]int64{1, 1})
	assert.ErrorIs(t, err, ErrNegativeAmount)
}

func TestJSONRoundTrip(t *testing.T) {
	m, _ := NewSigned(-1250, "INR")

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":-1250,"currency":"INR"}`, string(data))

	var out Money
	require.NoError(t, json.Unmarshal(data, &out))
	assert.True(t, m.Equal(out))
}
