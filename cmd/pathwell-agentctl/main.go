// Command pathwell-agentctl is a local-dev convenience for bootstrapping
// a developer and agent against a running identity registry: it
// generates a key pair and calls the registration endpoints so a
// developer doesn't have to hand-craft the requests.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/pathwell/agentcore/pkg/ca"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "register-developer":
		err = registerDeveloper(os.Args[2:])
	case "register-agent":
		err = registerAgent(os.Args[2:])
	case "keygen":
		err = keygen(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "pathwell-agentctl:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: pathwell-agentctl <keygen|register-developer|register-agent> [flags]")
}

func keygen(args []string) error {
	fs := flag.NewFlagSet("keygen", flag.ExitOnError)
	fs.Parse(args)

	priv, pub, err := ca.GenerateKeyPair()
	if err != nil {
		return err
	}
	fmt.Println("private key:")
	fmt.Println(priv)
	fmt.Println("public key:")
	fmt.Println(pub)
	return nil
}

func registerDeveloper(args []string) error {
	fs := flag.NewFlagSet("register-developer", flag.ExitOnError)
	registryURL := fs.String("registry", "http://localhost:3001", "identity registry base URL")
	developerID := fs.String("developer-id", "", "developer external ID")
	enterpriseID := fs.String("enterprise-id", "", "enterprise external ID (optional)")
	fs.Parse(args)

	if *developerID == "" {
		return fmt.Errorf("-developer-id is required")
	}
	_, publicKey, err := ca.GenerateKeyPair()
	if err != nil {
		return err
	}

	payload := map[string]interface{}{
		"developer_id": *developerID,
		"public_key":   publicKey,
	}
	if *enterpriseID != "" {
		payload["enterprise_id"] = *enterpriseID
	}
	return postAndPrint(*registryURL+"/v1/developers/register", payload)
}

func registerAgent(args []string) error {
	fs := flag.NewFlagSet("register-agent", flag.ExitOnError)
	registryURL := fs.String("registry", "http://localhost:3001", "identity registry base URL")
	agentID := fs.String("agent-id", "", "agent external ID")
	developerID := fs.String("developer-id", "", "owning developer external ID")
	enterpriseID := fs.String("enterprise-id", "", "enterprise external ID (optional)")
	fs.Parse(args)

	if *agentID == "" || *developerID == "" {
		return fmt.Errorf("-agent-id and -developer-id are required")
	}
	_, publicKey, err := ca.GenerateKeyPair()
	if err != nil {
		return err
	}

	payload := map[string]interface{}{
		"agent_id":     *agentID,
		"developer_id": *developerID,
		"public_key":   publicKey,
	}
	if *enterpriseID != "" {
		payload["enterprise_id"] = *enterpriseID
	}
	return postAndPrint(*registryURL+"/v1/agents/register", payload)
}

func postAndPrint(url string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("registry responded %d: %s", resp.StatusCode, out)
	}
	fmt.Println(string(out))
	return nil
}
