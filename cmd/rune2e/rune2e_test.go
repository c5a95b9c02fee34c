package main_test

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/gbytes"
	"github.com/onsi/gomega/gexec"
	"github.com/shirou/gopsutil/v3/process"
)

// The server records its pid and sleeps; the runner waits for that pid file,
// checks the environments it received and exits with the requested status.
const (
	serverScript = `echo $$ > server.pid; exec sleep 60`
	runnerScript = `while [ ! -s server.pid ]; do sleep 0.05; done; echo "targets=$2"; exit "$RUNNER_EXIT"`
)

func writeConfig(dir string, runnerExit int) string {
	body := strings.Join([]string{
		`version: "1"`,
		"server:",
		`  command: ["sh", "-c", "` + serverScript + `"]`,
		"  stopTimeout: 2s",
		"runner:",
		`  command: ["sh", "-c", "` + strings.ReplaceAll(runnerScript, `"`, `\"`) + `", "runner"]`,
		`  envFlag: "-e"`,
		"  env:",
		"    RUNNER_EXIT: \"" + strconv.Itoa(runnerExit) + "\"",
		"environments:",
		"  ciVariable: RUNE2E_E2E_CI",
	}, "\n") + "\n"
	path := filepath.Join(dir, "rune2e.yaml")
	Expect(os.WriteFile(path, []byte(body), 0o644)).To(Succeed())
	return path
}

func serverPID(dir string) int32 {
	data, err := os.ReadFile(filepath.Join(dir, "server.pid"))
	Expect(err).NotTo(HaveOccurred())
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	Expect(err).NotTo(HaveOccurred())
	return int32(pid)
}

func serverGone(pid int32) func() bool {
	return func() bool {
		proc, err := process.NewProcess(pid)
		if err != nil {
			return true
		}
		statuses, err := proc.Status()
		if err != nil {
			return true
		}
		for _, status := range statuses {
			if status == process.Zombie {
				return true
			}
		}
		return false
	}
}

var _ = Describe("rune2e", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	run := func(env []string, args ...string) *gexec.Session {
		cmd := exec.Command(rune2eBin, args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(), env...)
		session, err := gexec.Start(cmd, GinkgoWriter, GinkgoWriter)
		Expect(err).NotTo(HaveOccurred())
		return session
	}

	Context("when the CI indicator is unset", func() {
		It("exits 0 when the runner passes and stops the server", func() {
			writeConfig(dir, 0)

			session := run(nil, "--log-format", "json")
			Eventually(session, 30*time.Second).Should(gexec.Exit(0))
			Expect(session.Out).To(gbytes.Say("targets=chrome\n"))

			Eventually(serverGone(serverPID(dir)), 5*time.Second).Should(BeTrue())
		})

		It("passes through silently at the default log level", func() {
			writeConfig(dir, 0)

			session := run([]string{"RUNE2E_LOG_LEVEL="})
			Eventually(session, 30*time.Second).Should(gexec.Exit(0))
			Expect(session.Out).To(gbytes.Say("targets=chrome\n"))
			Expect(session.Err.Contents()).To(BeEmpty())
		})
	})

	Context("when the CI indicator is set", func() {
		It("forwards the runner's failing status and stops the server", func() {
			writeConfig(dir, 2)

			session := run([]string{"RUNE2E_E2E_CI=true"})
			Eventually(session, 30*time.Second).Should(gexec.Exit(2))
			Expect(session.Out).To(gbytes.Say("targets=chrome,safari,edge"))

			Eventually(serverGone(serverPID(dir)), 5*time.Second).Should(BeTrue())
		})
	})

	Context("when the runner cannot be started", func() {
		It("exits non-zero and reports the error", func() {
			body := strings.Join([]string{
				`version: "1"`,
				"server:",
				`  command: ["sh", "-c", "exec sleep 60"]`,
				"runner:",
				`  command: ["./missing-runner"]`,
			}, "\n") + "\n"
			Expect(os.WriteFile(filepath.Join(dir, "rune2e.yaml"), []byte(body), 0o644)).To(Succeed())

			session := run(nil)
			Eventually(session, 30*time.Second).Should(gexec.Exit(1))
			Expect(session.Err).To(gbytes.Say("runner"))
		})
	})

	Context("when the configuration is invalid", func() {
		It("fails before starting anything", func() {
			Expect(os.WriteFile(filepath.Join(dir, "rune2e.yaml"), []byte("bogus: true\n"), 0o644)).To(Succeed())

			session := run(nil, "config", "lint")
			Eventually(session, 10*time.Second).Should(gexec.Exit(1))
			Expect(session.Err).To(gbytes.Say("schema validation failed"))
		})
	})
})
