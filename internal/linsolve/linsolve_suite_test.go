package linsolve_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestLinsolve(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Linsolve Suite")
}
