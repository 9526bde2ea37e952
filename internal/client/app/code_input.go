package app

import "strings"

// CodeLength - число цифр в коде второго фактора.
const CodeLength = 6

// CodeInput - шесть ячеек ввода кода с фокусом. Не потокобезопасен;
// TwoFactor обращается к нему под своим мьютексом.
type CodeInput struct {
	slots [CodeLength]byte
	focus int
}

// NewCodeInput создает пустой ввод с фокусом на первой ячейке.
func NewCodeInput() *CodeInput {
	return &CodeInput{}
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// TypeDigit записывает цифру в ячейку под фокусом и переводит фокус на следующую.
func (c *CodeInput) TypeDigit(r rune) bool {
	if !isDigit(r) {
		return false
	}
	c.slots[c.focus] = byte(r)
	if c.focus < CodeLength-1 {
		c.focus++
	}
	return true
}

// Backspace очищает заполненную ячейку под фокусом, а на пустой ячейке
// переводит фокус на предыдущую.
func (c *CodeInput) Backspace() {
	if c.slots[c.focus] != 0 {
		c.slots[c.focus] = 0
		return
	}
	if c.focus > 0 {
		c.focus--
	}
}

// Paste заполняет все ячейки сразу. Принимаются только шесть цифр;
// пробелы по краям игнорируются.
func (c *CodeInput) Paste(s string) bool {
	s = strings.TrimSpace(s)
	if !ValidCode(s) {
		return false
	}
	copy(c.slots[:], s)
	c.focus = CodeLength - 1
	return true
}

// FocusSlot переводит фокус на ячейку i.
func (c *CodeInput) FocusSlot(i int) bool {
	if i < 0 || i >= CodeLength {
		return false
	}
	c.focus = i
	return true
}

// Clear очищает все ячейки и возвращает фокус на первую.
func (c *CodeInput) Clear() {
	*c = CodeInput{}
}

// Complete сообщает, что заполнены все ячейки.
func (c *CodeInput) Complete() bool {
	for _, d := range c.slots {
		if d == 0 {
			return false
		}
	}
	return true
}

// Code возвращает введенный код; пустые ячейки пропускаются.
func (c *CodeInput) Code() string {
	var b strings.Builder
	for _, d := range c.slots {
		if d != 0 {
			b.WriteByte(d)
		}
	}
	return b.String()
}

// Digits возвращает содержимое ячеек; пустая ячейка - пустая строка.
func (c *CodeInput) Digits() [CodeLength]string {
	var digits [CodeLength]string
	for i, d := range c.slots {
		if d != 0 {
			digits[i] = string(rune(d))
		}
	}
	return digits
}

// Focus возвращает индекс ячейки под фокусом.
func (c *CodeInput) Focus() int {
	return c.focus
}

// ValidCode сообщает, что s состоит ровно из шести цифр.
func ValidCode(s string) bool {
	if len(s) != CodeLength {
		return false
	}
	for _, r := range s {
		if !isDigit(r) {
			return false
		}
	}
	return true
}
