// Package mesh provides the finite-volume geometry the field engine runs
// on: cell centers, cell volumes, internal faces and the discrete
// gradient, divergence and Laplacian operators built from them.
package mesh
