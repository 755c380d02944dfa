package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

var rpcEndpoint = defaultRPCEndpoint() // Defaults to localhost, can be overridden via RPC_URL or --rpc flag
var rpcAuthToken = os.Getenv("RELIC_RPC_TOKEN")

func defaultRPCEndpoint() string {
	if fromEnv := strings.TrimSpace(os.Getenv("RPC_URL")); fromEnv != "" {
		return fromEnv
	}
	return "http://localhost:8080"
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := args[:0]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--rpc":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--rpc requires a URL")
			}
			i++
			rpcEndpoint = args[i]
		case strings.HasPrefix(arg, "--rpc="):
			rpcEndpoint = strings.TrimPrefix(arg, "--rpc=")
		default:
			out = append(out, arg)
		}
	}
	return out, nil
}

func main() {
	args, err := applyGlobalFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if len(args) < 1 {
		printUsage()
		return
	}

	command := args[0]
	switch command {
	case "listing":
		call("market_getListing", nil)
	case "sale":
		if len(args) < 2 {
			fmt.Println("Error: Please provide the seller address.")
			printUsage()
			return
		}
		call("market_getSale", map[string]interface{}{"seller": args[1]})
	case "balance":
		if len(args) < 2 {
			fmt.Println("Error: Please provide an address.")
			printUsage()
			return
		}
		call("market_getBalance", map[string]interface{}{"address": args[1]})
	case "holding":
		if len(args) < 3 {
			fmt.Println("Error: Please provide an address and an item id.")
			printUsage()
			return
		}
		itemID := parseUint(args[2], "item id")
		call("market_getItemBalance", map[string]interface{}{"address": args[1], "itemId": itemID})
	case "offer":
		if len(args) < 3 {
			fmt.Println("Error: Please provide the seller address and a price.")
			printUsage()
			return
		}
		call("market_sendTransaction", map[string]interface{}{
			"command": "offer",
			"from":    args[1],
			"price":   parseUint(args[2], "price"),
		})
	case "commit":
		if len(args) < 5 {
			fmt.Println("Error: Please provide buyer, seller, item id and amount.")
			printUsage()
			return
		}
		call("market_sendTransaction", map[string]interface{}{
			"command": "commit",
			"from":    args[1],
			"seller":  args[2],
			"itemId":  parseUint(args[3], "item id"),
			"amount":  parseUint(args[4], "amount"),
		})
	case "finalize":
		if len(args) < 3 {
			fmt.Println("Error: Please provide the caller and seller addresses.")
			printUsage()
			return
		}
		call("market_sendTransaction", map[string]interface{}{
			"command": "finalize",
			"from":    args[1],
			"seller":  args[2],
		})
	case "refund":
		if len(args) < 3 {
			fmt.Println("Error: Please provide the caller and seller addresses.")
			printUsage()
			return
		}
		call("market_sendTransaction", map[string]interface{}{
			"command": "refund",
			"from":    args[1],
			"seller":  args[2],
		})
	case "claim-fees":
		if len(args) < 2 {
			fmt.Println("Error: Please provide the creator address.")
			printUsage()
			return
		}
		call("market_sendTransaction", map[string]interface{}{
			"command": "claimFees",
			"from":    args[1],
		})
	case "events":
		call("market_getEvents", nil)
	case "round":
		call("market_currentRound", nil)
	case "advance-round":
		call("market_advanceRound", nil)
	case "vault":
		call("market_vaultAddress", nil)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
	}
}

func parseUint(raw, what string) uint64 {
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid %s %q\n", what, raw)
		os.Exit(1)
	}
	return value
}

func call(method string, param interface{}) {
	request := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if param != nil {
		request["params"] = []interface{}{param}
	}
	payload, err := json.Marshal(request)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error: failed to encode request:", err)
		os.Exit(1)
	}

	httpReq, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewReader(payload))
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error: failed to build request:", err)
		os.Exit(1)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if rpcAuthToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+rpcAuthToken)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error: RPC request failed:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	var decoded struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		fmt.Fprintln(os.Stderr, "Error: failed to decode response:", err)
		os.Exit(1)
	}
	if decoded.Error != nil {
		fmt.Fprintf(os.Stderr, "Error %d: %s\n", decoded.Error.Code, decoded.Error.Message)
		os.Exit(1)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, decoded.Result, "", "  "); err != nil {
		fmt.Println(string(decoded.Result))
		return
	}
	fmt.Println(pretty.String())
}

func printUsage() {
	fmt.Println(`Usage: relic-cli [--rpc URL] <command> [args]

Commands:
  listing                                  Show the market record
  sale <seller>                            Show the active sale bound to seller
  balance <address>                        Show an account balance
  holding <address> <itemId>               Show how many units of an item an address holds
  offer <seller> <price>                   Place or re-price a sale
  commit <buyer> <seller> <itemId> <amt>   Escrow payment for the offered sale
  finalize <caller> <seller>               Settle the committed sale
  refund <caller> <seller>                 Return escrowed funds to the buyer
  claim-fees <creator>                     Sweep accumulated royalties
  events                                   List emitted market events
  round                                    Show the current ledger round
  advance-round                            Advance the ledger round by one
  vault                                    Show the market vault address

Mutating commands require RELIC_RPC_TOKEN to be exported.`)
}
