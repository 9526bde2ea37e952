package app_test

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authkeeper/internal/client/app"
)

func TestCodeInputTyping(t *testing.T) {
	in := app.NewCodeInput()

	for i, r := range "1234" {
		require.True(t, in.TypeDigit(r))
		assert.Equal(t, i+1, in.Focus())
	}
	assert.False(t, in.TypeDigit('x'))
	assert.Equal(t, "1234", in.Code())
	assert.False(t, in.Complete())

	require.True(t, in.TypeDigit('5'))
	require.True(t, in.TypeDigit('6'))
	assert.Equal(t, app.CodeLength-1, in.Focus())
	assert.True(t, in.Complete())

	// На последней ячейке фокус остается на месте, цифра перезаписывается.
	require.True(t, in.TypeDigit('9'))
	assert.Equal(t, "123459", in.Code())
}

func TestCodeInputBackspace(t *testing.T) {
	in := app.NewCodeInput()
	in.TypeDigit('1')
	in.TypeDigit('2')

	// Фокус на пустой третьей ячейке: backspace переводит его назад.
	in.Backspace()
	assert.Equal(t, 1, in.Focus())
	assert.Equal(t, "12", in.Code())

	in.Backspace()
	assert.Equal(t, 1, in.Focus())
	assert.Equal(t, "1", in.Code())

	in.Backspace()
	in.Backspace()
	assert.Equal(t, 0, in.Focus())
	assert.Equal(t, "", in.Code())

	in.Backspace()
	assert.Equal(t, 0, in.Focus())
}

func TestCodeInputPasteFillsAllSlots(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 100; i++ {
		code := fmt.Sprintf("%06d", rng.Intn(1000000))
		in := app.NewCodeInput()
		in.FocusSlot(rng.Intn(app.CodeLength))

		require.True(t, in.Paste(code), code)
		assert.Equal(t, code, in.Code())
		assert.True(t, in.Complete())
		assert.Equal(t, app.CodeLength-1, in.Focus())

		digits := in.Digits()
		for j := range digits {
			assert.Equal(t, string(code[j]), digits[j])
		}
	}
}

func TestCodeInputRejectsInvalidPaste(t *testing.T) {
	for _, s := range []string{"", "12345", "1234567", "12a456", "12 456", "١٢٣٤٥٦"} {
		in := app.NewCodeInput()
		in.TypeDigit('7')

		assert.False(t, in.Paste(s), s)
		assert.Equal(t, "7", in.Code(), s)
	}

	in := app.NewCodeInput()
	assert.True(t, in.Paste("  042042\n"))
	assert.Equal(t, "042042", in.Code())
}

func TestCodeInputFocusAndClear(t *testing.T) {
	in := app.NewCodeInput()

	assert.False(t, in.FocusSlot(-1))
	assert.False(t, in.FocusSlot(app.CodeLength))
	require.True(t, in.FocusSlot(3))
	in.TypeDigit('8')
	assert.Equal(t, [app.CodeLength]string{"", "", "", "8", "", ""}, in.Digits())

	in.Clear()
	assert.Equal(t, 0, in.Focus())
	assert.Equal(t, "", in.Code())
}

func TestValidCode(t *testing.T) {
	assert.True(t, app.ValidCode("000000"))
	assert.True(t, app.ValidCode("987654"))
	assert.False(t, app.ValidCode("98765"))
	assert.False(t, app.ValidCode("98765a"))
	assert.False(t, app.ValidCode(" 987654"))
}
