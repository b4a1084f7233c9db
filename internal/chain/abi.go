package chain

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// FactoryABI is the interface of the TrustlessSplitterFactory contract.
const FactoryABI = `[
  {"type":"function","name":"getUserSplitters","stateMutability":"view",
   "inputs":[{"name":"user","type":"address"}],
   "outputs":[{"name":"","type":"address[]"}]},
  {"type":"function","name":"getSplitterInfo","stateMutability":"view",
   "inputs":[{"name":"splitter","type":"address"}],
   "outputs":[{"name":"creator","type":"address"},{"name":"createdAt","type":"uint256"},{"name":"members","type":"address[]"}]},
  {"type":"function","name":"createSplitter","stateMutability":"nonpayable",
   "inputs":[{"name":"members","type":"address[]"}],
   "outputs":[{"name":"","type":"address"}]}
]`

// SplitterABI is the interface of the TrustlessExpenseSplitter contract.
const SplitterABI = `[
  {"type":"function","name":"isMember","stateMutability":"view",
   "inputs":[{"name":"account","type":"address"}],
   "outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"getMemberBalance","stateMutability":"view",
   "inputs":[{"name":"member","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"reservedDeposits","stateMutability":"view",
   "inputs":[{"name":"member","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"totalPooledFunds","stateMutability":"view",
   "inputs":[],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getAllMembers","stateMutability":"view",
   "inputs":[],
   "outputs":[{"name":"","type":"address[]"}]},
  {"type":"function","name":"getNextExpenseId","stateMutability":"view",
   "inputs":[],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getExpenseDetails","stateMutability":"view",
   "inputs":[{"name":"expenseId","type":"uint256"}],
   "outputs":[{"name":"recipient","type":"address"},{"name":"amount","type":"uint256"},{"name":"participants","type":"address[]"},{"name":"approvalCount","type":"uint256"},{"name":"requiredApprovals","type":"uint256"},{"name":"executed","type":"bool"}]},
  {"type":"function","name":"hasApproved","stateMutability":"view",
   "inputs":[{"name":"expenseId","type":"uint256"},{"name":"member","type":"address"}],
   "outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"getParticipantShare","stateMutability":"view",
   "inputs":[{"name":"expenseId","type":"uint256"},{"name":"participant","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"deposit","stateMutability":"payable",
   "inputs":[],"outputs":[]},
  {"type":"function","name":"withdrawMoney","stateMutability":"nonpayable",
   "inputs":[],"outputs":[]},
  {"type":"function","name":"proposeExpense","stateMutability":"nonpayable",
   "inputs":[{"name":"recipient","type":"address"},{"name":"amount","type":"uint256"},{"name":"participants","type":"address[]"},{"name":"shares","type":"uint256[]"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"approveExpense","stateMutability":"nonpayable",
   "inputs":[{"name":"expenseId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"_executeExpense","stateMutability":"nonpayable",
   "inputs":[{"name":"expenseId","type":"uint256"}],"outputs":[]}
]`

// Method names as they appear in the ABIs.
const (
	methodGetUserSplitters    = "getUserSplitters"
	methodGetSplitterInfo     = "getSplitterInfo"
	methodCreateSplitter      = "createSplitter"
	methodIsMember            = "isMember"
	methodGetMemberBalance    = "getMemberBalance"
	methodReservedDeposits    = "reservedDeposits"
	methodTotalPooledFunds    = "totalPooledFunds"
	methodGetAllMembers       = "getAllMembers"
	methodGetNextExpenseID    = "getNextExpenseId"
	methodGetExpenseDetails   = "getExpenseDetails"
	methodHasApproved         = "hasApproved"
	methodGetParticipantShare = "getParticipantShare"
	methodDeposit             = "deposit"
	methodWithdraw            = "withdrawMoney"
	methodProposeExpense      = "proposeExpense"
	methodApproveExpense      = "approveExpense"
	methodExecuteExpense      = "_executeExpense"
)

var (
	parseOnce   sync.Once
	factoryABI  abi.ABI
	splitterABI abi.ABI
	parseErr    error
)

// ParsedABIs returns the parsed factory and splitter ABIs.
func ParsedABIs() (factory, splitter abi.ABI, err error) {
	parseOnce.Do(func() {
		factoryABI, parseErr = abi.JSON(strings.NewReader(FactoryABI))
		if parseErr != nil {
			parseErr = fmt.Errorf("parse factory abi: %w", parseErr)
			return
		}
		splitterABI, parseErr = abi.JSON(strings.NewReader(SplitterABI))
		if parseErr != nil {
			parseErr = fmt.Errorf("parse splitter abi: %w", parseErr)
		}
	})
	return factoryABI, splitterABI, parseErr
}
