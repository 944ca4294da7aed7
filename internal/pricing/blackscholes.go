// Package pricing computes theoretical option prices and sensitivities with
// the closed-form Black-Scholes model. All functions are pure and safe for
// concurrent use.
package pricing

import (
	"math"

	"paperbroker/internal/domain"
)

// Greeks holds the five sensitivities of an option's theoretical price.
// Theta is per calendar day; Vega and Rho are per one percentage point of
// volatility and rate respectively, matching the usual broker display
// convention.
type Greeks struct {
	Delta float64
	Gamma float64
	Theta float64
	Vega  float64
	Rho   float64
}

// Inputs are the Black-Scholes model inputs. TimeToExpiry is in years;
// Volatility and Rate are annualized fractions.
type Inputs struct {
	Kind         domain.OptionKind
	Spot         float64
	Strike       float64
	TimeToExpiry float64
	Volatility   float64
	Rate         float64
}

// Price returns the theoretical option value for the given inputs. Expired or
// zero-volatility contracts are valued at intrinsic.
func Price(in Inputs) float64 {
	price, _ := Compute(in)
	return price
}

// Compute returns the theoretical price and the five Greeks.
// Boundary cases never panic: TimeToExpiry <= 0 or Volatility <= 0 yields the
// intrinsic value with zero Greeks.
func Compute(in Inputs) (float64, Greeks) {
	if in.TimeToExpiry <= 0 || in.Volatility <= 0 || in.Spot <= 0 || in.Strike <= 0 {
		return Intrinsic(in.Kind, in.Spot, in.Strike), Greeks{}
	}

	sqrtT := math.Sqrt(in.TimeToExpiry)
	d1 := (math.Log(in.Spot/in.Strike) + (in.Rate+in.Volatility*in.Volatility/2)*in.TimeToExpiry) /
		(in.Volatility * sqrtT)
	d2 := d1 - in.Volatility*sqrtT
	discount := math.Exp(-in.Rate * in.TimeToExpiry)

	var price, delta, theta, rho float64
	if in.Kind == domain.Call {
		price = in.Spot*normCDF(d1) - in.Strike*discount*normCDF(d2)
		delta = normCDF(d1)
		theta = -in.Spot*normPDF(d1)*in.Volatility/(2*sqrtT) - in.Rate*in.Strike*discount*normCDF(d2)
		rho = in.Strike * in.TimeToExpiry * discount * normCDF(d2)
	} else {
		price = in.Strike*discount*normCDF(-d2) - in.Spot*normCDF(-d1)
		delta = normCDF(d1) - 1
		theta = -in.Spot*normPDF(d1)*in.Volatility/(2*sqrtT) + in.Rate*in.Strike*discount*normCDF(-d2)
		rho = -in.Strike * in.TimeToExpiry * discount * normCDF(-d2)
	}

	g := Greeks{
		Delta: delta,
		Gamma: normPDF(d1) / (in.Spot * in.Volatility * sqrtT),
		Theta: theta / 365, // per calendar day
		Vega:  in.Spot * normPDF(d1) * sqrtT / 100,
		Rho:   rho / 100,
	}
	return price, g
}

// Intrinsic returns max(S-K, 0) for calls and max(K-S, 0) for puts.
func Intrinsic(kind domain.OptionKind, spot, strike float64) float64 {
	var v float64
	if kind == domain.Call {
		v = spot - strike
	} else {
		v = strike - spot
	}
	return math.Max(v, 0)
}

func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

func normPDF(x float64) float64 {
	return math.Exp(-x*x/2) / math.Sqrt(2*math.Pi)
}
