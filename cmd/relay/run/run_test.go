package runcmder_test

import (
	"bytes"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	runcmder "github.com/papercomputeco/relay/cmd/relay/run"
)

var _ = Describe("NewRunCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := runcmder.NewRunCmd()
		Expect(cmd.Use).To(Equal("run"))
		Expect(cmd.Short).NotTo(BeEmpty())
	})

	It("registers the bridge flags", func() {
		cmd := runcmder.NewRunCmd()
		for _, name := range []string{
			"sse-url", "rpc-url", "queue-size", "endpoint-timeout",
			"backoff-initial", "backoff-max", "max-retries",
			"record", "sqlite", "token", "log-file",
		} {
			Expect(cmd.Flags().Lookup(name)).NotTo(BeNil(), "missing flag %s", name)
		}
	})

	It("defaults the sse url to the hosted service", func() {
		cmd := runcmder.NewRunCmd()
		flag := cmd.Flags().Lookup("sse-url")
		Expect(flag.DefValue).To(Equal("https://mcp.devin.ai/sse"))
	})
})

var _ = Describe("Run command execution", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "relay-run-test-*")
		Expect(err).NotTo(HaveOccurred())

		// Make sure no ambient token leaks into the test.
		GinkgoT().Setenv("DEVIN_API_KEY", "")
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("fails fast when no bearer token can be resolved", func() {
		cmd := runcmder.NewRunCmd()
		cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
		cmd.PersistentFlags().String("config-dir", "", "Override the .relay/ directory location")
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"--config-dir", tmpDir})

		err := cmd.Execute()
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("no bearer token"))
	})

	It("rejects malformed durations before connecting", func() {
		cmd := runcmder.NewRunCmd()
		cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
		cmd.PersistentFlags().String("config-dir", "", "Override the .relay/ directory location")
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{
			"--config-dir", tmpDir,
			"--token", "dv-test",
			"--endpoint-timeout", "soon",
		})

		err := cmd.Execute()
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("endpoint-timeout"))
	})
})
