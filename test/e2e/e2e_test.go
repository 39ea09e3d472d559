//go:build e2e

/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

package e2e

import (
	"fmt"
	"os/exec"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kais-io/cellmesh/test/utils"
)

const namespace = "cellmesh-system"

var _ = Describe("manager", Ordered, func() {
	BeforeAll(func() {
		By("creating manager namespace")
		cmd := exec.Command("kubectl", "create", "ns", namespace)
		_, _ = utils.Run(cmd)
	})

	AfterAll(func() {
		By("removing manager namespace")
		cmd := exec.Command("kubectl", "delete", "ns", namespace)
		_, _ = utils.Run(cmd)
	})

	Context("Operator", func() {
		It("should run successfully", func() {
			var controllerPodName string
			var err error

			// projectimage stores the name of the image used in the example
			var projectimage = "example.com/cellmesh:v0.0.1"

			By("building the manager(Operator) image")
			cmd := exec.Command("make", "docker-build", fmt.Sprintf("IMG=%s", projectimage))
			_, err = utils.Run(cmd)
			ExpectWithOffset(1, err).NotTo(HaveOccurred())

			By("loading the the manager(Operator) image on Kind")
			err = utils.LoadImageToKindClusterWithName(projectimage)
			ExpectWithOffset(1, err).NotTo(HaveOccurred())

			By("installing CRDs")
			cmd = exec.Command("make", "install")
			_, err = utils.Run(cmd)
			ExpectWithOffset(1, err).NotTo(HaveOccurred())

			By("deploying the controller-manager")
			cmd = exec.Command("make", "deploy", fmt.Sprintf("IMG=%s", projectimage))
			_, err = utils.Run(cmd)
			ExpectWithOffset(1, err).NotTo(HaveOccurred())

			By("validating that the controller-manager pod is running as expected")
			verifyControllerUp := func() error {
				cmd = exec.Command("kubectl", "get",
					"pods", "-l", "control-plane=controller-manager",
					"-o", "go-template={{ range .items }}"+
						"{{ if not .metadata.deletionTimestamp }}"+
						"{{ .metadata.name }}"+
						"{{ \"\\n\" }}{{ end }}{{ end }}",
					"-n", namespace,
				)

				podOutput, err := utils.Run(cmd)
				ExpectWithOffset(2, err).NotTo(HaveOccurred())
				podNames := utils.GetNonEmptyLines(string(podOutput))
				if len(podNames) != 1 {
					return fmt.Errorf("expect 1 controller pods running, but got %d", len(podNames))
				}
				controllerPodName = podNames[0]
				ExpectWithOffset(2, controllerPodName).Should(ContainSubstring("controller-manager"))

				cmd = exec.Command("kubectl", "get",
					"pods", controllerPodName, "-o", "jsonpath={.status.phase}",
					"-n", namespace,
				)
				status, err := utils.Run(cmd)
				ExpectWithOffset(2, err).NotTo(HaveOccurred())
				if string(status) != "Running" {
					return fmt.Errorf("controller pod in %s status", status)
				}
				return nil
			}
			EventuallyWithOffset(1, verifyControllerUp, time.Minute, time.Second).Should(Succeed())
		})
	})

	Context("Cell lifecycle", func() {
		It("should start a stub-provider cell backed by a pod", func() {
			By("creating a Cell")
			cmd := exec.Command("kubectl", "apply", "-f", "-")
			cmd.Stdin = createCellManifest("e2e-echo-cell", "stub", "Echo what you receive.")
			_, err := utils.Run(cmd)
			Expect(err).NotTo(HaveOccurred())

			By("waiting for the cell to leave Pending")
			verifyCellRunning := func() error {
				cmd = exec.Command("kubectl", "get", "cell", "e2e-echo-cell",
					"-o", "jsonpath={.status.phase}")
				output, err := utils.Run(cmd)
				if err != nil {
					return err
				}
				phase := string(output)
				if phase == "" || phase == "Pending" {
					return fmt.Errorf("cell phase is %q, waiting for progress", phase)
				}
				return nil
			}
			EventuallyWithOffset(1, verifyCellRunning, 2*time.Minute, 5*time.Second).Should(Succeed())

			By("checking the cell has a backing pod")
			cmd = exec.Command("kubectl", "get", "cell", "e2e-echo-cell",
				"-o", "jsonpath={.status.podName}")
			output, err := utils.Run(cmd)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(output)).NotTo(BeEmpty())

			By("cleaning up")
			cmd = exec.Command("kubectl", "delete", "cell", "e2e-echo-cell")
			_, _ = utils.Run(cmd)
		})
	})

	Context("Formation scaling", func() {
		It("should expand replicas into indexed child cells", func() {
			By("creating a three-replica Formation")
			cmd := exec.Command("kubectl", "apply", "-f", "-")
			cmd.Stdin = createFormationManifest("e2e-team", 3)
			_, err := utils.Run(cmd)
			Expect(err).NotTo(HaveOccurred())

			By("waiting for the children")
			verifyChildren := func() error {
				cmd = exec.Command("kubectl", "get", "cell", "-o", "name")
				output, err := utils.Run(cmd)
				if err != nil {
					return err
				}
				var n int
				for _, line := range utils.GetNonEmptyLines(string(output)) {
					if strings.Contains(line, "cell.kais.io/e2e-worker-") {
						n++
					}
				}
				if n != 3 {
					return fmt.Errorf("expect 3 child cells, got %d", n)
				}
				return nil
			}
			EventuallyWithOffset(1, verifyChildren, 2*time.Minute, 5*time.Second).Should(Succeed())

			By("cleaning up formation and children via cascade")
			cmd = exec.Command("kubectl", "delete", "formation", "e2e-team")
			_, _ = utils.Run(cmd)
		})
	})
})

// createCellManifest generates a Cell YAML manifest as an io.Reader.
func createCellManifest(name, provider, prompt string) *strings.Reader {
	manifest := fmt.Sprintf(`apiVersion: kais.io/v1
kind: Cell
metadata:
  name: %s
spec:
  mind:
    provider: %s
    model: stub-small
    systemPrompt: "%s"
`, name, provider, prompt)
	return strings.NewReader(manifest)
}

// createFormationManifest generates a Formation with one worker
// declaration at the given replica count.
func createFormationManifest(name string, replicas int) *strings.Reader {
	manifest := fmt.Sprintf(`apiVersion: kais.io/v1
kind: Formation
metadata:
  name: %s
spec:
  topology:
    kind: full_mesh
  cells:
    - name: e2e-worker
      replicas: %d
      spec:
        mind:
          provider: stub
          model: stub-small
          systemPrompt: "You are a worker."
`, name, replicas)
	return strings.NewReader(manifest)
}
