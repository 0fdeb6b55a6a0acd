package insurance

// Address is the deployed insurance contract.
const Address = "0xd9145CCE52D386f254917e481eB44e9943F39138"

// Contract entry points.
const (
	MethodRegisterPolicy = "registerPolicy"
	MethodSubmitClaim    = "submitClaim"
	MethodApproveClaim   = "approveClaim"
	MethodPayout         = "payout"
)

// ABI describes the four entry points the client invokes.
const ABI = `[
  {
    "inputs": [
      {"internalType": "address", "name": "_policyHolder", "type": "address"},
      {"internalType": "uint256", "name": "_payoutAmount", "type": "uint256"},
      {"internalType": "string", "name": "_condition", "type": "string"}
    ],
    "name": "registerPolicy",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "uint256", "name": "_policyId", "type": "uint256"},
      {"internalType": "string", "name": "_evidence", "type": "string"}
    ],
    "name": "submitClaim",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "uint256", "name": "_policyId", "type": "uint256"}],
    "name": "approveClaim",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "uint256", "name": "_policyId", "type": "uint256"}],
    "name": "payout",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  }
]`
