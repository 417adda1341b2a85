package delay_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestDelay(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Delay Suite")
}
