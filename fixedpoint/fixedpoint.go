// Package fixedpoint 实现 MLFQS 用的 17.14 定点数。
//
// 一个 Value 是一个 int32：高 17 位（含符号）是整数部分，低 14 位是小数部分。
// 两个定点数相乘、相除时在 int64 里算，再按小数位宽移回来，
// 结果四舍五入到最近（恰好一半时远离零）。
package fixedpoint

// Q 是小数部分的位数
const Q = 14

// F 是 1.0 的定点表示
const F = 1 << Q

// Value 是一个 17.14 定点数
type Value int32

// FromInt 把整数 n 转为定点数
func FromInt(n int) Value {
	return Value(n * F)
}

// Int 截断（向零取整）转为整数
func (x Value) Int() int {
	return int(x) / F
}

// Round 四舍五入转为整数，恰好一半时远离零
func (x Value) Round() int {
	return int(roundDiv(int64(x), F))
}

// Add 返回 x + y
func (x Value) Add(y Value) Value {
	return x + y
}

// Sub 返回 x - y
func (x Value) Sub(y Value) Value {
	return x - y
}

// AddInt 返回 x + n
func (x Value) AddInt(n int) Value {
	return x + FromInt(n)
}

// SubInt 返回 x - n
func (x Value) SubInt(n int) Value {
	return x - FromInt(n)
}

// MulInt 返回 x * n，精确
func (x Value) MulInt(n int) Value {
	return x * Value(n)
}

// DivInt 返回 x / n，截断
func (x Value) DivInt(n int) Value {
	return x / Value(n)
}

// Mul 返回 x * y
func (x Value) Mul(y Value) Value {
	return Value(roundDiv(int64(x)*int64(y), F))
}

// Div 返回 x / y。y 为 0 时 panic（和整数除法一样）。
func (x Value) Div(y Value) Value {
	return Value(roundDiv(int64(x)*F, int64(y)))
}

// roundDiv 计算 n/d，四舍五入，恰好一半时远离零
func roundDiv(n, d int64) int64 {
	if (n < 0) != (d < 0) {
		return (n - d/2) / d
	}
	return (n + d/2) / d
}
