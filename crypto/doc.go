// Package crypto provides scalar-field polynomial arithmetic over the
// BLS12-381 scalar field.
//
// Polynomials are held either in coefficient form (Polynomial, increasing
// degree order) or as evaluations over a power-of-two multiplicative subgroup
// (fft.Domain). The helpers here are the building blocks of the bivariate KZG
// prover:
//
//   - Horner evaluation, synthetic division by (X - k), long division
//   - vanishing polynomials and division by them
//   - Lagrange basis coefficients and quotients in evaluation form
//
// Functions in this package are pure. Violated preconditions, such as dividing
// by the zero polynomial, panic.
package crypto
